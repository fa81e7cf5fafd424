package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// TradernetNormalizer converts Tradernet account-summary payloads into
// positions. The payload nests holdings under result.ps.pos and cash
// balances under result.ps.acc, with single-letter field names:
//
//	i    - instrument symbol
//	q    - quantity
//	curr - currency
//	t    - instrument type description
//	a    - account id
//	bal_price_a - average cost basis per share
type TradernetNormalizer struct {
	log zerolog.Logger
}

// NewTradernetNormalizer creates the Tradernet adapter.
func NewTradernetNormalizer(log zerolog.Logger) *TradernetNormalizer {
	return &TradernetNormalizer{
		log: log.With().Str("normalizer", "tradernet").Logger(),
	}
}

// ProviderID implements Normalizer.
func (n *TradernetNormalizer) ProviderID() string { return "tradernet" }

// Normalize implements Normalizer.
func (n *TradernetNormalizer) Normalize(payload []byte) ([]domain.Position, []domain.Warning, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode tradernet payload: %w", err)
	}

	result, ok := doc["result"].(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("invalid tradernet payload: missing 'result' field")
	}

	ps, ok := result["ps"].(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("invalid tradernet payload: missing 'ps' field")
	}

	var positions []domain.Position
	var warnings []domain.Warning

	if posArray, ok := ps["pos"].([]interface{}); ok {
		for _, item := range posArray {
			posMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}

			symbol := getString(posMap, "i")
			quantity, hasQty := getDecimal(posMap, "q")

			if symbol == "" && !hasQty {
				warnings = append(warnings, domain.Warningf(
					domain.WarnMalformedRecord, "", n.ProviderID(),
					"record has neither symbol nor quantity, dropped"))
				continue
			}
			if symbol == "" || !hasQty {
				warnings = append(warnings, domain.Warningf(
					domain.WarnMalformedRecord, symbol, n.ProviderID(),
					"record missing symbol or quantity, dropped"))
				continue
			}

			pos := domain.Position{
				Ticker:     symbol,
				Quantity:   quantity,
				Currency:   getString(posMap, "curr"),
				TypeHint:   domain.ParseSecurityType(getString(posMap, "t")),
				AccountID:  getString(posMap, "a"),
				ProviderID: n.ProviderID(),
			}
			if costBasis, ok := getDecimal(posMap, "bal_price_a"); ok {
				pos.CostBasis = &costBasis
			}

			positions = append(positions, pos)
		}
	}

	// Cash accounts become synthetic CUR:<ccy> positions.
	if accArray, ok := ps["acc"].([]interface{}); ok {
		for _, item := range accArray {
			accMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}

			currency := getString(accMap, "curr")
			balance, hasBal := getDecimal(accMap, "s")
			if currency == "" || !hasBal {
				warnings = append(warnings, domain.Warningf(
					domain.WarnMalformedRecord, "", n.ProviderID(),
					"cash account missing currency or balance, dropped"))
				continue
			}

			positions = append(positions, domain.Position{
				Ticker:     domain.CashTickerPrefix + currency,
				Quantity:   balance,
				Currency:   currency,
				TypeHint:   domain.SecurityTypeCash,
				ProviderID: n.ProviderID(),
			})
		}
	}

	n.log.Debug().
		Int("positions", len(positions)).
		Int("warnings", len(warnings)).
		Msg("Normalized tradernet payload")

	return positions, warnings, nil
}
