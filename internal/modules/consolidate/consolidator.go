// Package consolidate merges normalized positions from all providers into
// canonical portfolio positions. Consolidation is a pure function: no shared
// state, deterministic for a fixed input order and priority snapshot, and
// idempotent when re-run on its own output.
package consolidate

import (
	"sort"
	"strings"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/domain"
)

// currencyKeySeparator disambiguates same-ticker positions reported in
// different currencies so neither side is dropped or misattributed.
const currencyKeySeparator = "__"

// BaseTicker returns the exchange symbol behind a consolidated key, dropping
// the currency suffix from diverted mixed-currency groups. Classification
// lookups must use the base symbol: the suffixed key is synthetic and unknown
// to any external service.
func BaseTicker(ticker string) string {
	if i := strings.Index(ticker, currencyKeySeparator); i > 0 {
		return ticker[:i]
	}
	return ticker
}

// group accumulates positions that are legal to merge: same output key,
// same currency.
type group struct {
	key      string
	currency string
	sum      *domain.CanonicalPosition
	// metadata winner bookkeeping
	winnerPriority int
	isCash         bool
}

// Consolidate merges positions across providers. Quantities within a group
// are always summed; the priority snapshot selects metadata only. Same-ticker
// positions in different currencies are never merged: the later currency gets
// its own "<ticker>__<currency>" key and a MixedCurrencySameTicker warning.
func Consolidate(positions []domain.Position, priorities *config.PrioritySnapshot) ([]domain.CanonicalPosition, []domain.Warning) {
	groups := make(map[string]*group)
	var order []string
	var warnings []domain.Warning

	// Maps a base ticker to the currency that claimed it first, so later
	// records in another currency can be diverted instead of merged.
	baseCurrency := make(map[string]string)

	for _, pos := range positions {
		// Normalizers filter malformed records; if one slips through it is
		// skipped with a warning, never merged as zero.
		if pos.Ticker == "" {
			warnings = append(warnings, domain.Warningf(
				domain.WarnMalformedRecord, "", pos.ProviderID,
				"position without ticker reached consolidation, skipped"))
			continue
		}

		if pos.IsCash() {
			key := pos.CashTicker()
			g, ok := groups[key]
			if !ok {
				g = newCashGroup(key)
				groups[key] = g
				order = append(order, key)
			}
			mergeInto(g, pos, priorities)
			continue
		}

		key := pos.Ticker
		if claimed, ok := baseCurrency[pos.Ticker]; ok && claimed != pos.Currency {
			key = pos.Ticker + currencyKeySeparator + pos.Currency
			if _, exists := groups[key]; !exists {
				warnings = append(warnings, domain.Warningf(
					domain.WarnMixedCurrencySameTicker, pos.Ticker, pos.ProviderID,
					"ticker reported in both %s and %s, kept separate as %s", claimed, pos.Currency, key))
			}
		} else if !ok {
			baseCurrency[pos.Ticker] = pos.Currency
		}

		g, exists := groups[key]
		if !exists {
			g = newGroup(key, pos)
			groups[key] = g
			order = append(order, key)
		}
		mergeInto(g, pos, priorities)
	}

	// Stable output: groups in first-seen order would also be deterministic,
	// but sorted keys make results easy to diff across runs.
	sort.Strings(order)

	out := make([]domain.CanonicalPosition, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key].sum)
	}

	return out, warnings
}

func newGroup(key string, pos domain.Position) *group {
	return &group{
		key:            key,
		currency:       pos.Currency,
		winnerPriority: -1,
		sum: &domain.CanonicalPosition{
			Ticker:   key,
			Currency: pos.Currency,
		},
	}
}

func newCashGroup(key string) *group {
	// The canonical cash ticker is the identity, so the currency always
	// comes from the key, even if the record's currency field disagrees.
	currency := key[len(domain.CashTickerPrefix):]
	return &group{
		key:            key,
		currency:       currency,
		winnerPriority: -1,
		isCash:         true,
		sum: &domain.CanonicalPosition{
			Ticker:       key,
			Currency:     currency,
			SecurityType: domain.SecurityTypeCash,
			TypeHint:     domain.SecurityTypeCash,
		},
	}
}

// mergeInto adds a position's quantity to the group and lets the highest
// priority provider win the metadata fields. Ties keep the first-seen winner.
func mergeInto(g *group, pos domain.Position, priorities *config.PrioritySnapshot) {
	g.sum.Quantity = g.sum.Quantity.Add(pos.Quantity)
	g.sum.AddProvider(pos.ProviderID)

	priority := priorities.Priority(pos.ProviderID)
	if priority <= g.winnerPriority {
		return
	}
	g.winnerPriority = priority

	g.sum.AccountID = pos.AccountID
	if pos.CostBasis != nil {
		cb := *pos.CostBasis
		g.sum.CostBasis = &cb
	} else {
		g.sum.CostBasis = nil
	}
	if !g.isCash {
		g.sum.TypeHint = pos.TypeHint
	}
}
