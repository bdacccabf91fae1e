package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	sharedErrors "github.com/secaudit/headgrade/internal/shared/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	eventTypeScan  = "scan"
	eventTypeQuery = "query"
)

// SQLiteLog stores events in a single append-only table. Rows are only
// ever inserted; there is no update or delete path.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the event database and applies pending
// migrations.
func OpenSQLite(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error { return l.db.Close() }

// IngestScan appends a completed scan record.
func (l *SQLiteLog) IngestScan(ctx context.Context, rec ScanRecord) error {
	return l.insert(ctx, eventTypeScan, rec.Hostname, rec.Timestamp, rec)
}

// IngestQuery appends a query event.
func (l *SQLiteLog) IngestQuery(ctx context.Context, ev QueryEvent) error {
	return l.insert(ctx, eventTypeQuery, ev.Hostname, ev.Timestamp, ev)
}

func (l *SQLiteLog) insert(ctx context.Context, eventType, hostname string, ts time.Time, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal %s event: %v", sharedErrors.ErrPersistence, eventType, err)
	}
	_, err = l.db.ExecContext(ctx,
		"INSERT INTO events (ts, event_type, hostname, payload) VALUES (?, ?, ?, ?)",
		ts.UnixMilli(), eventType, hostname, string(data))
	if err != nil {
		return fmt.Errorf("%w: insert %s event: %v", sharedErrors.ErrPersistence, eventType, err)
	}
	return nil
}

// LatestScan returns the newest scan record for hostname, nil when the
// host has never been scanned.
func (l *SQLiteLog) LatestScan(ctx context.Context, hostname string) (*ScanRecord, error) {
	var payload string
	err := l.db.QueryRowContext(ctx,
		"SELECT payload FROM events WHERE hostname = ? AND event_type = ? ORDER BY ts DESC, id DESC LIMIT 1",
		hostname, eventTypeScan).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query latest scan: %v", sharedErrors.ErrPersistence, err)
	}

	var rec ScanRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("%w: decode scan record: %v", sharedErrors.ErrPersistence, err)
	}
	return &rec, nil
}

func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := parseVersion(name)
		if err != nil {
			return fmt.Errorf("parse version from %s: %w", name, err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().Unix()); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	return nil
}

func parseVersion(filename string) (int, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return strconv.Atoi(parts[0])
}
