package store

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/shared/cachedtime"
)

// Stored entry header contract, preserved by every storage backend.
const (
	HeaderCacheTime    = "X-Cache-Time"
	HeaderCacheTTL     = "X-Cache-TTL"
	HeaderCacheType    = "X-Cache-Type"
	HeaderCacheVersion = "X-Cache-Version"
	HeaderLastAccessed = "X-Last-Accessed"
)

// Entry is one stored response. The body is opaque. storedAt is fixed at
// write time; lastAccessed moves on every read and drives LRU eviction,
// so lastAccessed >= storedAt always holds. seq is the store-wide write
// sequence used as the stable eviction tie-break for equal timestamps.
type Entry struct {
	key           string
	body          []byte
	status        int
	header        http.Header
	tierName      string
	ttl           time.Duration
	schemaVersion string
	storedAt      int64 // unix nano, immutable after write
	lastAccessed  atomic.Int64
	seq           uint64
}

// NewEntry stamps a freshly fetched response for the given tier.
func NewEntry(key string, status int, header http.Header, body []byte, tier *config.Tier) *Entry {
	now := cachedtime.UnixNano()
	e := &Entry{
		key:           key,
		body:          body,
		status:        status,
		header:        header,
		tierName:      tier.Name,
		ttl:           tier.TTL,
		schemaVersion: tier.SchemaVersion,
		storedAt:      now,
	}
	e.lastAccessed.Store(now)
	return e
}

func (e *Entry) Key() string           { return e.key }
func (e *Entry) Body() []byte          { return e.body }
func (e *Entry) Status() int           { return e.status }
func (e *Entry) Header() http.Header   { return e.header }
func (e *Entry) TierName() string      { return e.tierName }
func (e *Entry) TTL() time.Duration    { return e.ttl }
func (e *Entry) SchemaVersion() string { return e.schemaVersion }
func (e *Entry) Seq() uint64           { return e.seq }

func (e *Entry) StoredAt() time.Time {
	return time.Unix(0, e.storedAt)
}

func (e *Entry) LastAccessedAt() time.Time {
	return time.Unix(0, e.lastAccessed.Load())
}

// Touch renews the access stamp. Called by Store.Get on every hit.
func (e *Entry) Touch() {
	now := cachedtime.UnixNano()
	if now < e.storedAt {
		now = e.storedAt
	}
	e.lastAccessed.Store(now)
}

// Fresh reports whether the entry is within its TTL at the given moment.
// Staleness is the caller's business: the fast path serves stale hits on
// purpose, so the store never enforces this itself.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt()) < e.ttl
}

// Age is the time since the entry was written.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt())
}

// Weight is the payload size used by telemetry.
func (e *Entry) Weight() int64 {
	return int64(len(e.body))
}

// CacheHeader materializes the X-Cache-* contract written alongside the
// body when the entry is replayed to a caller.
func (e *Entry) CacheHeader() http.Header {
	h := make(http.Header, 5)
	h.Set(HeaderCacheTime, strconv.FormatInt(e.StoredAt().UnixMilli(), 10))
	h.Set(HeaderCacheTTL, strconv.FormatInt(int64(e.ttl/time.Second), 10))
	h.Set(HeaderCacheType, e.tierName)
	h.Set(HeaderLastAccessed, strconv.FormatInt(e.LastAccessedAt().UnixMilli(), 10))
	if e.schemaVersion != "" {
		h.Set(HeaderCacheVersion, e.schemaVersion)
	}
	return h
}
