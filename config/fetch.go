package config

import "time"

// FetchCfg bounds the network fetcher retry loop.
type FetchCfg struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// BackoffUnit is multiplied by the attempt number between retries
	// (linear backoff: unit, 2*unit, ...).
	BackoffUnit time.Duration `yaml:"backoff_unit"`
}

// LockCfg bounds per-key update locks.
type LockCfg struct {
	// Timeout force-releases a lock that was never explicitly released,
	// so a hung fetch cannot block its key forever. This is a safety
	// valve, not a correctness mechanism.
	Timeout time.Duration `yaml:"timeout"`
}
