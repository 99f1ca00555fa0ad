package store

import (
	"net/http"
	"time"
)

// EntrySnapshot is the serialized form of an entry, used by the disk
// dump. Timestamps are unix nanos so the LRU ordering survives a
// restart intact.
type EntrySnapshot struct {
	Key           string        `json:"key"`
	Body          []byte        `json:"body"`
	Status        int           `json:"status"`
	Header        http.Header   `json:"header,omitempty"`
	TierName      string        `json:"tier"`
	TTL           time.Duration `json:"ttl"`
	SchemaVersion string        `json:"schema_version,omitempty"`
	StoredAt      int64         `json:"stored_at"`
	LastAccessed  int64         `json:"last_accessed"`
}

func (e *Entry) Snapshot() EntrySnapshot {
	return EntrySnapshot{
		Key:           e.key,
		Body:          e.body,
		Status:        e.status,
		Header:        e.header,
		TierName:      e.tierName,
		TTL:           e.ttl,
		SchemaVersion: e.schemaVersion,
		StoredAt:      e.storedAt,
		LastAccessed:  e.lastAccessed.Load(),
	}
}

// FromSnapshot rebuilds an entry, clamping the access stamp to keep the
// lastAccessed >= storedAt invariant even over corrupted input.
func FromSnapshot(s EntrySnapshot) *Entry {
	e := &Entry{
		key:           s.Key,
		body:          s.Body,
		status:        s.Status,
		header:        s.Header,
		tierName:      s.TierName,
		ttl:           s.TTL,
		schemaVersion: s.SchemaVersion,
		storedAt:      s.StoredAt,
	}
	accessed := s.LastAccessed
	if accessed < s.StoredAt {
		accessed = s.StoredAt
	}
	e.lastAccessed.Store(accessed)
	return e
}
