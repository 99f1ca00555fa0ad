package config

import "time"

// LifecycleCfg drives install/activate behavior and the upstream
// version probe.
type LifecycleCfg struct {
	// StaticTier names the tier pre-warmed on install.
	StaticTier string `yaml:"static_tier"`

	// PrecacheURLs is the fixed file set loaded into StaticTier.
	PrecacheURLs []string `yaml:"precache_urls"`

	// VersionURL is the well-known endpoint returning {"version": ...}.
	// Empty disables the probe.
	VersionURL string `yaml:"version_url"`
}

// DumpCfg configures disk snapshots of the tier stores.
type DumpCfg struct {
	IsEnabled bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
}

func (cfg *DumpCfg) Enabled() bool {
	return cfg != nil && cfg.IsEnabled
}

// TelemetryCfg configures the periodic stats log loop.
type TelemetryCfg struct {
	IsEnabled bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil && cfg.IsEnabled
}
