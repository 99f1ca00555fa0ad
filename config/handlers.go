package config

import "time"

// StorageCfg configures the storage-backend policy override: cache-key
// normalization, schema version validation and opportunistic background
// refresh of aging hits.
//
// Note: when nil, the storage tier (if any) runs the generic pipeline.
type StorageCfg struct {
	// Tier names the tier this override applies to.
	Tier string `yaml:"tier"`

	// StripParams are volatility-only query parameters removed from the
	// cache key before lookup (priority hints and the like).
	StripParams []string `yaml:"strip_params"`

	// StaleAfter is the hit age past which a background refetch is
	// kicked off while the hit is still served immediately.
	StaleAfter time.Duration `yaml:"stale_after"`
}

func (cfg *StorageCfg) Enabled() bool {
	return cfg != nil && cfg.Tier != ""
}

// FastPathCfg configures the render-critical override: any hit is served
// with no freshness check and refreshed in the background shortly after.
type FastPathCfg struct {
	// Tier names the tier this override applies to.
	Tier string `yaml:"tier"`

	// PriorityHeader flags individual requests onto the fast path even
	// outside the tier (explicit high-priority requests).
	PriorityHeader string `yaml:"priority_header"`

	// RefreshDelay is the pause before the background refresh of a
	// served hit.
	RefreshDelay time.Duration `yaml:"refresh_delay"`

	// FetchTimeout bounds the direct fetch on a miss.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

func (cfg *FastPathCfg) Enabled() bool {
	return cfg != nil && cfg.Tier != ""
}

// RefreshCfg paces the background revalidation workers shared by both
// policy overrides.
type RefreshCfg struct {
	// Rate caps background refreshes per second.
	Rate int `yaml:"rate"`

	// QueueCap bounds the pending refresh queue; overflow jobs are dropped.
	QueueCap int `yaml:"queue_cap"`
}

func (cfg *RefreshCfg) Enabled() bool {
	return cfg != nil && cfg.Rate > 0
}
