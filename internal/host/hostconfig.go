package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"alloc-bench/internal/logging"

	"github.com/intel/goresctrl/pkg/rdt"
	"github.com/sirupsen/logrus"
)

// HostConfig describes the machine a run executes on. It is captured once
// and stored with the run so results from different hosts are never
// compared by accident.
type HostConfig struct {
	// CPU Information
	CPUVendor   string `json:"cpu_vendor"`
	CPUModel    string `json:"cpu_model"`
	LogicalCPUs int    `json:"logical_cpus"`
	NumSockets  int    `json:"num_sockets"`

	L3CacheBytes int64 `json:"l3_cache_bytes"`

	// Cache partitioning shifts allocator results, so its presence is recorded.
	RDT RDTConfig `json:"rdt"`

	// System Information
	Hostname      string `json:"hostname"`
	OSInfo        string `json:"os_info"`
	KernelVersion string `json:"kernel_version"`
}

type RDTConfig struct {
	Supported           bool     `json:"supported"`
	MonitoringSupported bool     `json:"monitoring_supported"`
	Classes             []string `json:"classes,omitempty"`
}

var (
	globalHostConfig *HostConfig
	globalHostErr    error
	hostConfigOnce   sync.Once
)

// GetHostConfig returns the global host configuration
// It initializes the configuration on first call
func GetHostConfig() (*HostConfig, error) {
	hostConfigOnce.Do(func() {
		globalHostConfig, globalHostErr = initializeHostConfig()
	})
	return globalHostConfig, globalHostErr
}

func initializeHostConfig() (*HostConfig, error) {
	logger := logging.GetLogger()

	config := &HostConfig{}

	if err := config.initSystemInfo(); err != nil {
		return nil, fmt.Errorf("failed to initialize system info: %w", err)
	}

	config.initCPUInfo()

	if size, err := l3CacheSizeFromSysfs(); err != nil {
		logger.WithError(err).Debug("L3 cache size unavailable")
	} else {
		config.L3CacheBytes = size
	}

	config.initRDTInfo()

	logger.WithFields(logrus.Fields{
		"hostname":      config.Hostname,
		"cpu_model":     config.CPUModel,
		"logical_cpus":  config.LogicalCPUs,
		"rdt_supported": config.RDT.Supported,
	}).Debug("Host configuration initialized")

	return config, nil
}

func (hc *HostConfig) initSystemInfo() error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	hc.Hostname = hostname

	hc.OSInfo = runtime.GOOS + "/" + runtime.GOARCH

	// Get kernel version from /proc/version
	if data, err := os.ReadFile("/proc/version"); err == nil {
		version := strings.Fields(string(data))
		if len(version) >= 3 {
			hc.KernelVersion = version[2]
		}
	}
	if hc.KernelVersion == "" {
		hc.KernelVersion = "unknown"
	}

	return nil
}

func (hc *HostConfig) initCPUInfo() {
	hc.LogicalCPUs = runtime.NumCPU()

	file, err := os.Open("/proc/cpuinfo")
	if err != nil {
		hc.CPUVendor = "unknown"
		hc.CPUModel = "unknown"
		hc.NumSockets = 1
		return
	}
	defer file.Close()

	hc.CPUVendor, hc.CPUModel, hc.NumSockets = parseCPUInfo(file)
}

// parseCPUInfo extracts vendor, model name and socket count from /proc/cpuinfo content.
func parseCPUInfo(r io.Reader) (vendor, model string, sockets int) {
	physicalIDs := make(map[string]bool)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "vendor_id":
			if vendor == "" {
				vendor = value
			}
		case "model name":
			if model == "" {
				model = value
			}
		case "physical id":
			physicalIDs[value] = true
		}
	}

	if vendor == "" {
		vendor = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	sockets = len(physicalIDs)
	if sockets == 0 {
		sockets = 1
	}
	return vendor, model, sockets
}

func l3CacheSizeFromSysfs() (int64, error) {
	cachePaths := []string{
		"/sys/devices/system/cpu/cpu0/cache/index3/size",
		"/sys/devices/system/cpu/cpu0/cache/index2/size", // Some systems use index2 for L3
	}

	for _, path := range cachePaths {
		if data, err := os.ReadFile(path); err == nil {
			if size, err := parseCacheSize(string(data)); err == nil {
				return size, nil
			}
		}
	}

	return 0, fmt.Errorf("could not determine L3 cache size")
}

// parseCacheSize parses sysfs sizes like "8192K", "32M" or "8388608".
func parseCacheSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1024, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1024*1024, strings.TrimSuffix(s, "M")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

func (hc *HostConfig) initRDTInfo() {
	logger := logging.GetLogger()

	if err := rdt.Initialize(""); err != nil {
		logger.WithError(err).Debug("RDT not available")
		return
	}

	hc.RDT.MonitoringSupported = rdt.MonSupported()
	for _, class := range rdt.GetClasses() {
		hc.RDT.Classes = append(hc.RDT.Classes, class.Name())
	}
	hc.RDT.Supported = hc.RDT.MonitoringSupported || len(hc.RDT.Classes) > 0
}
