package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDeviceMemoryBytes       = 8 << 30
	defaultLowMemoryThresholdBytes = 4 << 30
	defaultMaxRetries              = 2
	defaultBackoffUnit             = time.Second
	defaultLockTimeout             = 5 * time.Second
	defaultStaleAfter              = time.Hour
	defaultRefreshDelay            = 50 * time.Millisecond
	defaultFetchTimeout            = 3 * time.Second
	defaultRefreshQueueCap         = 256
	defaultRefreshRate             = 100
	defaultTelemetryInterval       = 5 * time.Second
	defaultRPCBodyLimitBytes       = 64 << 10
)

// Cache is the root configuration: the tier registry, bypass rules and
// every knob of the request pipeline. Built once, immutable afterwards.
type Cache struct {
	// Version is the running application version, answered to GET_VERSION
	// and compared against the upstream version probe.
	Version string `yaml:"version"`

	Tiers   []*Tier     `yaml:"tiers"`
	NoCache *NoCacheCfg `yaml:"no_cache"`

	Memory    MemoryCfg     `yaml:"memory"`
	Fetch     FetchCfg      `yaml:"fetch"`
	Lock      LockCfg       `yaml:"lock"`
	Storage   *StorageCfg   `yaml:"storage"`
	FastPath  *FastPathCfg  `yaml:"fast_path"`
	Refresh   *RefreshCfg   `yaml:"refresh"`
	Dump      *DumpCfg      `yaml:"dump"`
	Telemetry *TelemetryCfg `yaml:"telemetry"`
	Lifecycle LifecycleCfg  `yaml:"lifecycle"`

	// CacheTimeEnabled turns on the coarse cached wall clock used for
	// hot-path timestamp stamping.
	CacheTimeEnabled bool `yaml:"cache_time_enabled"`
}

// AdjustConfig fills documented defaults for omitted values. It must run
// once before the config is handed to New.
func (cfg *Cache) AdjustConfig() {
	if cfg.Memory.DeviceMemoryBytes <= 0 {
		cfg.Memory.DeviceMemoryBytes = defaultDeviceMemoryBytes
	}
	if cfg.Memory.LowMemoryThresholdBytes <= 0 {
		cfg.Memory.LowMemoryThresholdBytes = defaultLowMemoryThresholdBytes
	}
	if cfg.Fetch.MaxRetries <= 0 {
		cfg.Fetch.MaxRetries = defaultMaxRetries
	}
	if cfg.Fetch.BackoffUnit <= 0 {
		cfg.Fetch.BackoffUnit = defaultBackoffUnit
	}
	if cfg.Lock.Timeout <= 0 {
		cfg.Lock.Timeout = defaultLockTimeout
	}
	if cfg.NoCache.Enabled() && cfg.NoCache.RPCBodyLimitBytes <= 0 {
		cfg.NoCache.RPCBodyLimitBytes = defaultRPCBodyLimitBytes
	}
	if cfg.Storage.Enabled() && cfg.Storage.StaleAfter <= 0 {
		cfg.Storage.StaleAfter = defaultStaleAfter
	}
	if cfg.FastPath.Enabled() {
		if cfg.FastPath.RefreshDelay <= 0 {
			cfg.FastPath.RefreshDelay = defaultRefreshDelay
		}
		if cfg.FastPath.FetchTimeout <= 0 {
			cfg.FastPath.FetchTimeout = defaultFetchTimeout
		}
	}
	if cfg.Refresh == nil && (cfg.Storage.Enabled() || cfg.FastPath.Enabled()) {
		cfg.Refresh = &RefreshCfg{Rate: defaultRefreshRate}
	}
	if cfg.Refresh.Enabled() && cfg.Refresh.QueueCap <= 0 {
		cfg.Refresh.QueueCap = defaultRefreshQueueCap
	}
	if cfg.Telemetry.Enabled() && cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = defaultTelemetryInterval
	}
}

// LoadConfig reads and normalizes a yaml config file.
func LoadConfig(path string) (*Cache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Cache
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	cfg.AdjustConfig()

	return cfg, nil
}
