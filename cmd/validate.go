package main

import (
	"fmt"
	"strings"

	"alloc-bench/internal/config"
	"alloc-bench/internal/counters"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/registry"

	"github.com/cheynewallace/tabby"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var configFile string
	var debug bool

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a suite configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile, debug)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to suite configuration file")
	validateCmd.Flags().BoolVar(&debug, "debug", false, "Check the debug build profile")
	validateCmd.MarkFlagRequired("config")
	return validateCmd
}

func newListCmd() *cobra.Command {
	var configFile string
	var debug bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the variants and workloads of a suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSuite(configFile, debug)
		},
	}
	listCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to suite configuration file")
	listCmd.Flags().BoolVar(&debug, "debug", false, "Resolve artifacts of the debug build profile")
	listCmd.MarkFlagRequired("config")
	return listCmd
}

func loadRegistry(configFile string, debug bool) (*config.SuiteConfig, *registry.Registry, error) {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return nil, nil, err
	}
	profile := config.ProfileRelease
	if debug {
		profile = config.ProfileDebug
	}
	reg, err := registry.New(cfg, profile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Registry validation failed")
		return nil, nil, err
	}
	return cfg, reg, nil
}

func validateConfig(configFile string, debug bool) error {
	logger := logging.GetLogger()

	cfg, reg, err := loadRegistry(configFile, debug)
	if err != nil {
		return err
	}

	// Missing artifacts are reported, not fatal: a build may still produce them.
	for _, name := range reg.VariantNames() {
		if _, err := reg.Resolve(name); err != nil {
			logger.WithField("variant", name).WithError(err).Warn("Variant not runnable yet")
		}
	}

	events := cfg.GetEvents()
	if len(events) == 0 {
		events = config.DefaultEvents
	}
	var unavailable []string
	for _, check := range counters.Preflight(events) {
		if check.Known && !check.Supported {
			unavailable = append(unavailable, check.Event)
		}
	}
	if len(unavailable) > 0 {
		logger.WithField("events", strings.Join(unavailable, ",")).Warn("Counters not available on this host")
	}

	logger.WithFields(logrus.Fields{
		"config_file": configFile,
		"variants":    len(reg.VariantNames()),
		"workloads":   len(reg.WorkloadNames()),
	}).Info("Configuration is valid")
	return nil
}

func listSuite(configFile string, debug bool) error {
	_, reg, err := loadRegistry(configFile, debug)
	if err != nil {
		return err
	}

	t := tabby.New()
	t.AddHeader("VARIANT", "ACTIVATION", "STATUS")
	for _, name := range reg.VariantNames() {
		v, err := reg.Resolve(name)
		if err != nil {
			t.AddLine(name, "-", err.Error())
			continue
		}
		t.AddLine(name, strings.Join(v.Activation.Overlay(), " "), "ok")
	}
	t.Print()
	fmt.Println()

	t = tabby.New()
	t.AddHeader("WORKLOAD", "COMMAND", "DIR", "HOOKS")
	for _, name := range reg.WorkloadNames() {
		w, err := reg.Workload(name)
		if err != nil {
			return err
		}
		dir := w.Dir
		if dir == "" {
			dir = "."
		}
		t.AddLine(name, w.Command, dir, fmt.Sprintf("%d pre, %d post", len(w.Pre), len(w.Post)))
	}
	t.Print()
	return nil
}
