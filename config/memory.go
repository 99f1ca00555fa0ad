package config

// MemoryCfg carries the host memory figures the eviction engine adapts to.
// The values are supplied by the host environment rather than probed,
// so behavior is deterministic across platforms.
type MemoryCfg struct {
	// DeviceMemoryBytes is the host memory size. Zero takes the default (8GB).
	DeviceMemoryBytes int64 `yaml:"device_memory_bytes"`

	// LowMemoryThresholdBytes flags the host low-memory when device memory
	// falls below it. Zero takes the default (4GB).
	LowMemoryThresholdBytes int64 `yaml:"low_memory_threshold_bytes"`
}

// LowMemory reports whether tiers should apply their low-memory caps.
func (cfg *MemoryCfg) LowMemory() bool {
	return cfg.DeviceMemoryBytes < cfg.LowMemoryThresholdBytes
}
