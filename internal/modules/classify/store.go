package classify

import (
	"database/sql"
	"fmt"
	"time"
)

// storeSchema is the single source of truth for the classification table.
// Timestamps are stored as unix seconds for cheap range scans on expiry.
const storeSchema = `
CREATE TABLE IF NOT EXISTS classification (
	ticker        TEXT PRIMARY KEY,
	security_type TEXT NOT NULL,
	source_tier   TEXT NOT NULL,
	resolved_at   INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_classification_expires ON classification(expires_at);
CREATE INDEX IF NOT EXISTS idx_classification_resolved ON classification(resolved_at);
`

// Store is the persistent classification tier: a durable ticker-keyed table
// with per-entry expiry. Writes are atomic per ticker (single-row upsert),
// so a cancelled batch can never leave a partially written entry.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database connection and ensures the
// schema exists.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(storeSchema); err != nil {
		return nil, fmt.Errorf("apply classification schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put upserts the entry for a ticker.
func (s *Store) Put(entry Entry) error {
	expiresAt := entry.ResolvedAt.Add(entry.TTL).Unix()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO classification (ticker, security_type, source_tier, resolved_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.Ticker, string(entry.SecurityType), string(entry.SourceTier),
		entry.ResolvedAt.Unix(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store classification for %s: %w", entry.Ticker, err)
	}

	return nil
}

// GetIfFresh returns the entry only if it has not expired.
// Returns nil, nil if the ticker is unknown or the entry is stale.
// Use Get to retrieve stale entries as a fallback when lookups fail.
func (s *Store) GetIfFresh(ticker string) (*Entry, error) {
	return s.get(ticker, true)
}

// Get returns the entry regardless of expiration status.
// Stale data is better than no data when the authoritative tier is down.
// Returns nil, nil if the ticker is unknown.
func (s *Store) Get(ticker string) (*Entry, error) {
	return s.get(ticker, false)
}

func (s *Store) get(ticker string, freshOnly bool) (*Entry, error) {
	query := `SELECT ticker, security_type, source_tier, resolved_at, expires_at
		FROM classification WHERE ticker = ?`
	args := []interface{}{ticker}
	if freshOnly {
		query += ` AND expires_at > ?`
		args = append(args, time.Now().Unix())
	}

	var (
		entry        Entry
		securityType string
		sourceTier   string
		resolvedAt   int64
		expiresAt    int64
	)
	err := s.db.QueryRow(query, args...).Scan(
		&entry.Ticker, &securityType, &sourceTier, &resolvedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification for %s: %w", ticker, err)
	}

	entry.SecurityType = securityTypeFromString(securityType)
	entry.SourceTier = Tier(sourceTier)
	entry.ResolvedAt = time.Unix(resolvedAt, 0)
	entry.TTL = time.Duration(expiresAt-resolvedAt) * time.Second
	return &entry, nil
}

// ListStale returns tickers whose entries are older than maxAge, for bulk
// refresh tooling.
func (s *Store) ListStale(maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	rows, err := s.db.Query(
		`SELECT ticker FROM classification WHERE resolved_at < ? ORDER BY resolved_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale classifications: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan stale ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale tickers: %w", err)
	}

	return tickers, nil
}

// Delete removes the entry for a ticker.
func (s *Store) Delete(ticker string) error {
	if _, err := s.db.Exec(`DELETE FROM classification WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to delete classification for %s: %w", ticker, err)
	}
	return nil
}

// DeleteExpired removes all rows past their expiry.
// Returns the number of rows deleted.
func (s *Store) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM classification WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired classifications: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// Count returns the number of persisted entries.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM classification`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count classifications: %w", err)
	}
	return n, nil
}
