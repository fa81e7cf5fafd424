package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/custodian/internal/domain"
)

// ibflexRecord is one row of an Interactive Brokers flex-report export.
// Quantities arrive as strings to avoid float formatting loss upstream.
type ibflexRecord struct {
	Symbol        string `json:"symbol"`
	Quantity      string `json:"position"`
	Currency      string `json:"currency"`
	AssetClass    string `json:"assetCategory"` // STK, ETF, FUND, BOND, CASH
	AccountID     string `json:"accountId"`
	CostBasis     string `json:"costBasisMoney"`
	LevelOfDetail string `json:"levelOfDetail,omitempty"`
}

// IBFlexNormalizer converts Interactive Brokers flex-report position exports
// (a flat JSON array of records) into positions.
type IBFlexNormalizer struct {
	log zerolog.Logger
}

// NewIBFlexNormalizer creates the IB flex-report adapter.
func NewIBFlexNormalizer(log zerolog.Logger) *IBFlexNormalizer {
	return &IBFlexNormalizer{
		log: log.With().Str("normalizer", "ibflex").Logger(),
	}
}

// ProviderID implements Normalizer.
func (n *IBFlexNormalizer) ProviderID() string { return "ibflex" }

// Normalize implements Normalizer.
func (n *IBFlexNormalizer) Normalize(payload []byte) ([]domain.Position, []domain.Warning, error) {
	var records []ibflexRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, nil, fmt.Errorf("decode ibflex payload: %w", err)
	}

	var positions []domain.Position
	var warnings []domain.Warning

	for _, rec := range records {
		// Summary rows duplicate the lot-level rows they aggregate.
		if rec.LevelOfDetail == "SUMMARY" {
			continue
		}

		quantity, qtyErr := decimal.NewFromString(strings.TrimSpace(rec.Quantity))
		hasQty := rec.Quantity != "" && qtyErr == nil

		if rec.Symbol == "" && !hasQty {
			warnings = append(warnings, domain.Warningf(
				domain.WarnMalformedRecord, "", n.ProviderID(),
				"record has neither symbol nor quantity, dropped"))
			continue
		}
		if rec.Symbol == "" || !hasQty {
			warnings = append(warnings, domain.Warningf(
				domain.WarnMalformedRecord, rec.Symbol, n.ProviderID(),
				"record missing symbol or quantity, dropped"))
			continue
		}

		hint := parseIBAssetClass(rec.AssetClass)

		ticker := rec.Symbol
		if hint == domain.SecurityTypeCash && !strings.HasPrefix(ticker, domain.CashTickerPrefix) {
			ticker = domain.CashTickerPrefix + rec.Currency
		}

		pos := domain.Position{
			Ticker:     ticker,
			Quantity:   quantity,
			Currency:   rec.Currency,
			TypeHint:   hint,
			AccountID:  rec.AccountID,
			ProviderID: n.ProviderID(),
		}
		if rec.CostBasis != "" {
			if cb, err := decimal.NewFromString(strings.TrimSpace(rec.CostBasis)); err == nil {
				pos.CostBasis = &cb
			}
		}

		positions = append(positions, pos)
	}

	n.log.Debug().
		Int("positions", len(positions)).
		Int("warnings", len(warnings)).
		Msg("Normalized ibflex payload")

	return positions, warnings, nil
}

// parseIBAssetClass maps IB asset category codes to canonical types.
func parseIBAssetClass(assetClass string) domain.SecurityType {
	switch strings.ToUpper(strings.TrimSpace(assetClass)) {
	case "STK":
		return domain.SecurityTypeEquity
	case "ETF":
		return domain.SecurityTypeETF
	case "FUND":
		return domain.SecurityTypeMutualFund
	case "BOND", "BILL":
		return domain.SecurityTypeBond
	case "CASH":
		return domain.SecurityTypeCash
	default:
		return domain.SecurityTypeUnknown
	}
}
