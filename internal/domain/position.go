// Package domain defines the core position and classification types shared
// across the consolidation pipeline. The domain layer is pure: no database,
// HTTP, or logging dependencies.
package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CashTickerPrefix marks synthetic cash positions. A cash balance of 5000 USD
// is represented as ticker "CUR:USD" with quantity 5000.
const CashTickerPrefix = "CUR:"

// Position is a single normalized holding as reported by one provider.
// Positions are immutable once produced by a normalizer; the consolidator
// reads them but never mutates them.
type Position struct {
	Ticker     string           `json:"ticker"`
	Quantity   decimal.Decimal  `json:"quantity"` // signed, fractional allowed, negative = short
	Currency   string           `json:"currency"`
	TypeHint   SecurityType     `json:"type_hint,omitempty"` // provider-reported, advisory only
	AccountID  string           `json:"account_id,omitempty"`
	CostBasis  *decimal.Decimal `json:"cost_basis,omitempty"`
	ProviderID string           `json:"provider_id"`
}

// IsCash reports whether the position is a synthetic cash balance, either by
// ticker convention or by provider hint.
func (p Position) IsCash() bool {
	return strings.HasPrefix(p.Ticker, CashTickerPrefix) || p.TypeHint == SecurityTypeCash
}

// CashTicker returns the canonical cash ticker for the position's currency.
func (p Position) CashTicker() string {
	if strings.HasPrefix(p.Ticker, CashTickerPrefix) {
		return p.Ticker
	}
	return CashTickerPrefix + p.Currency
}

// CanonicalPosition is the provider-agnostic representation of a holding
// after consolidation. Quantity is always the arithmetic sum of the merged
// inputs; metadata comes from the highest-priority contributing provider.
type CanonicalPosition struct {
	Ticker                string           `json:"ticker"`
	Quantity              decimal.Decimal  `json:"quantity"`
	Currency              string           `json:"currency"`
	SecurityType          SecurityType     `json:"security_type"`
	TypeHint              SecurityType     `json:"type_hint,omitempty"` // winning provider hint, input to classification
	CostBasis             *decimal.Decimal `json:"cost_basis,omitempty"`
	AccountID             string           `json:"account_id,omitempty"`
	ContributingProviders []string         `json:"contributing_providers"`

	// Risk annotation, attached by the pipeline after classification.
	ScenarioName string  `json:"scenario_name,omitempty"`
	Severity     float64 `json:"severity,omitempty"`
}

// AddProvider records a contributing provider, keeping the set sorted and
// free of duplicates so output is deterministic.
func (c *CanonicalPosition) AddProvider(providerID string) {
	for _, p := range c.ContributingProviders {
		if p == providerID {
			return
		}
	}
	c.ContributingProviders = append(c.ContributingProviders, providerID)
	sort.Strings(c.ContributingProviders)
}
