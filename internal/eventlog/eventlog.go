// Package eventlog is the append-only analytics store for completed scans
// and the lighter query events. The core only depends on the Log
// interface; the SQLite store is one implementation.
package eventlog

import (
	"context"
	"time"

	"github.com/secaudit/headgrade/internal/probe"
	"github.com/secaudit/headgrade/internal/provider"
	"github.com/secaudit/headgrade/internal/rules"
)

// ScanRecord is the persisted outcome of one completed probe. Created
// exactly once per probe and never mutated afterwards.
type ScanRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	Hostname   string          `json:"hostname"`
	URL        string          `json:"url"`
	RawHeaders rules.HeaderMap `json:"raw_headers,omitempty"`
	Addresses  probe.Addresses `json:"ip_addresses"`
	Report     rules.Report    `json:"report"`
	Provider   provider.Info   `json:"provider"`
	Grade      rules.Grade     `json:"grade"`

	// Cached marks a record served from the event log instead of a fresh
	// probe. Set on the returned copy only, never persisted.
	Cached bool `json:"cached,omitempty"`
}

// QueryEvent is the lightweight analytics record appended for every scan
// request, whether it hit the cache or triggered a probe.
type QueryEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	Client    string    `json:"client"`
	Cached    bool      `json:"cached"`
}

// Log is the event store contract. Ingest is best-effort: callers may
// fire and forget, and a failed ingest never fails the scan that
// produced the record.
type Log interface {
	IngestScan(ctx context.Context, rec ScanRecord) error
	IngestQuery(ctx context.Context, ev QueryEvent) error

	// LatestScan returns the most recent scan record for hostname, or
	// nil when none exists.
	LatestScan(ctx context.Context, hostname string) (*ScanRecord, error)
}
