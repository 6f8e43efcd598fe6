package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"alloc-bench/internal/logging"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*SuiteConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*SuiteConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	config, err := ParseConfig(originalContent)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	return config, originalContent, nil
}

// ParseConfig expands ${VAR} references, decodes and validates a suite file.
func ParseConfig(content string) (*SuiteConfig, error) {
	expanded := expandEnvVars(content)

	var config SuiteConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func validateConfig(config *SuiteConfig) error {
	if config.Suite.Name == "" {
		return Errorf("suite name is required")
	}

	if len(config.Variants) == 0 && config.Suite.Discover == "" {
		return Errorf("at least one variant must be defined or discovered")
	}

	if len(config.Workloads) == 0 {
		return Errorf("at least one workload must be defined")
	}

	variants := make(map[string]bool)
	for i, v := range config.Variants {
		if v.Name == "" {
			return Errorf("variant #%d: name is required", i)
		}
		if variants[v.Name] {
			return Errorf("variant %s: defined more than once", v.Name)
		}
		variants[v.Name] = true

		if v.System == (v.Library != "") {
			return Errorf("variant %s: exactly one of library or system must be set", v.Name)
		}
	}

	workloads := make(map[string]bool)
	for i, w := range config.Workloads {
		if w.Name == "" {
			return Errorf("workload #%d: name is required", i)
		}
		if workloads[w.Name] {
			return Errorf("workload %s: defined more than once", w.Name)
		}
		workloads[w.Name] = true

		if strings.TrimSpace(w.Command) == "" {
			return Errorf("workload %s: command is required", w.Name)
		}

		if d, err := w.GetTimeout(); err != nil || d < 0 {
			return Errorf("workload %s: invalid timeout %q", w.Name, w.Timeout)
		}
	}

	if db := config.Suite.Data.DB; db != nil {
		if db.Host == "" || db.Name == "" || db.Password == "" || db.Org == "" {
			return Errorf("incomplete database configuration")
		}
	}

	return nil
}
