// Package classify resolves tickers to canonical security types through a
// tiered lookup chain: in-process memory cache, persistent sqlite store,
// authoritative HTTP lookup, and a deterministic heuristic of last resort.
// The first tier with a fresh answer wins.
package classify

import (
	"time"

	"github.com/aristath/custodian/internal/domain"
)

// Tier identifies which stage of the lookup chain produced an entry.
type Tier string

const (
	// TierMemory - served from the in-process cache.
	TierMemory Tier = "memory"
	// TierPersistent - served from the sqlite store.
	TierPersistent Tier = "persistent"
	// TierAuthoritative - resolved by the external classification service.
	TierAuthoritative Tier = "authoritative"
	// TierHeuristic - best-effort guess from ticker patterns and hints.
	TierHeuristic Tier = "heuristic"
)

// Entry is one resolved classification. Entries are written atomically per
// ticker and owned exclusively by the classification cache; no other
// component mutates them.
type Entry struct {
	Ticker       string              `json:"ticker"`
	SecurityType domain.SecurityType `json:"security_type"`
	SourceTier   Tier                `json:"source_tier"`
	ResolvedAt   time.Time           `json:"resolved_at"`
	TTL          time.Duration       `json:"ttl"`
}

// Stale reports whether the entry has outlived its TTL at the given time.
func (e Entry) Stale(now time.Time) bool {
	return now.Sub(e.ResolvedAt) > e.TTL
}

// securityTypeFromString restores a persisted type string, mapping anything
// unrecognized (for example a value written by a newer version) to UNKNOWN.
func securityTypeFromString(s string) domain.SecurityType {
	t := domain.SecurityType(s)
	if !t.Valid() {
		return domain.SecurityTypeUnknown
	}
	return t
}
