package config

import "time"

// Tier is one cache policy bucket: a named store with its own TTL,
// entry cap and URL matching rules. Tiers are loaded once at startup
// and never mutated afterwards.
type Tier struct {
	// Name identifies the tier and its backing store.
	Name string `yaml:"name"`

	// TTL is how long an entry of this tier stays fresh after a write.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries caps the number of entries kept in the tier store.
	MaxEntries int `yaml:"max_entries"`

	// LowMemoryMaxEntries replaces MaxEntries when the host is flagged
	// low-memory. Zero falls back to MaxEntries.
	LowMemoryMaxEntries int `yaml:"low_memory_max_entries"`

	// URLPatterns are tested in order against the request URL.
	// A pattern with a leading '/' matches by substring-of-path,
	// any other pattern matches by suffix. First tier match wins.
	URLPatterns []string `yaml:"url_patterns"`

	// SchemaVersion tags entries of tiers that validate compatibility
	// on read (the storage-backend tier). Empty disables the check.
	SchemaVersion string `yaml:"schema_version"`
}

// TierByName returns the named tier or nil.
func (cfg *Cache) TierByName(name string) *Tier {
	for _, t := range cfg.Tiers {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TierNames returns tier names in registration order.
func (cfg *Cache) TierNames() []string {
	names := make([]string, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		names = append(names, t.Name)
	}
	return names
}
