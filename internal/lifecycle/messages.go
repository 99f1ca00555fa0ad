package lifecycle

import (
	"fmt"

	"github.com/Borislavv/go-tier-cache/internal/metrics"
)

// Control messages are a closed set of command variants, each with its
// own typed payload, dispatched exhaustively by Controller.Handle.
type Message interface {
	isMessage()
}

// SkipWaiting promotes the pending version immediately.
type SkipWaiting struct{}

// InvalidateCache deletes one key, or the entire tier when URL is empty.
type InvalidateCache struct {
	CacheName string `json:"cacheName"`
	URL       string `json:"url,omitempty"`
}

// ClearAllCaches deletes every tier's content.
type ClearAllCaches struct{}

// GetVersion asks for the running version.
type GetVersion struct{}

// GetMetrics asks for the per-tier stats report.
type GetMetrics struct{}

func (SkipWaiting) isMessage()     {}
func (InvalidateCache) isMessage() {}
func (ClearAllCaches) isMessage()  {}
func (GetVersion) isMessage()      {}
func (GetMetrics) isMessage()      {}

// Response type tags, preserved on the wire.
const (
	TypeVersionInfo     = "VERSION_INFO"
	TypeMetricsReport   = "METRICS_REPORT"
	TypeUpdateAvailable = "UPDATE_AVAILABLE"
)

// VersionInfo answers GetVersion.
type VersionInfo struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// MetricsReport answers GetMetrics.
type MetricsReport struct {
	Type  string               `json:"type"`
	Stats map[string]TierStats `json:"stats"`
}

// TierStats is one tier's formatted stats payload.
type TierStats struct {
	HitRate           string `json:"hitRate"`
	AvgResponseTimeMs int64  `json:"avgResponseTime"`
	Hits              int64  `json:"hits"`
	Misses            int64  `json:"misses"`
	Errors            int64  `json:"errors"`
}

// Notification is broadcast to subscribers, e.g. when the upstream
// version probe sees a newer version.
type Notification struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
}

func formatStats(report map[string]metrics.TierReport) map[string]TierStats {
	stats := make(map[string]TierStats, len(report))
	for tier, r := range report {
		stats[tier] = TierStats{
			HitRate:           fmt.Sprintf("%.2f%%", r.HitRate),
			AvgResponseTimeMs: r.AvgLatency.Milliseconds(),
			Hits:              r.Hits,
			Misses:            r.Misses,
			Errors:            r.Errors,
		}
	}
	return stats
}
