package normalize

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/domain"
)

func TestIBFlexNormalize(t *testing.T) {
	payload := []byte(`[
		{"symbol": "AAPL", "position": "10", "currency": "USD", "assetCategory": "STK", "accountId": "U123", "costBasisMoney": "1502.50"},
		{"symbol": "VWCE", "position": "3.5", "currency": "EUR", "assetCategory": "ETF", "accountId": "U123"},
		{"symbol": "VFIAX", "position": "20", "currency": "USD", "assetCategory": "FUND", "accountId": "U123"},
		{"symbol": "T 4.25", "position": "10000", "currency": "USD", "assetCategory": "BOND", "accountId": "U123"},
		{"symbol": "USD", "position": "2500.25", "currency": "USD", "assetCategory": "CASH", "accountId": "U123"}
	]`)

	n := NewIBFlexNormalizer(zerolog.Nop())
	positions, warnings, err := n.Normalize(payload)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, positions, 5)

	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.Equal(t, domain.SecurityTypeEquity, positions[0].TypeHint)
	require.NotNil(t, positions[0].CostBasis)
	assert.True(t, decimal.NewFromFloat(1502.50).Equal(*positions[0].CostBasis))
	assert.Equal(t, "ibflex", positions[0].ProviderID)

	assert.Equal(t, domain.SecurityTypeETF, positions[1].TypeHint)
	assert.Equal(t, domain.SecurityTypeMutualFund, positions[2].TypeHint)
	assert.Equal(t, domain.SecurityTypeBond, positions[3].TypeHint)

	// Cash rows are rewritten to the synthetic cash ticker.
	assert.Equal(t, "CUR:USD", positions[4].Ticker)
	assert.Equal(t, domain.SecurityTypeCash, positions[4].TypeHint)
	assert.True(t, decimal.NewFromFloat(2500.25).Equal(positions[4].Quantity))
}

func TestIBFlexNormalizeSkipsSummaryRows(t *testing.T) {
	payload := []byte(`[
		{"symbol": "AAPL", "position": "4", "currency": "USD", "assetCategory": "STK", "levelOfDetail": "LOT"},
		{"symbol": "AAPL", "position": "6", "currency": "USD", "assetCategory": "STK", "levelOfDetail": "LOT"},
		{"symbol": "AAPL", "position": "10", "currency": "USD", "assetCategory": "STK", "levelOfDetail": "SUMMARY"}
	]`)

	n := NewIBFlexNormalizer(zerolog.Nop())
	positions, warnings, err := n.Normalize(payload)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, positions, 2, "summary rows must not double-count their lots")

	total := positions[0].Quantity.Add(positions[1].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(total))
}

func TestIBFlexNormalizeDropsMalformedRecords(t *testing.T) {
	payload := []byte(`[
		{"currency": "USD"},
		{"symbol": "MSFT", "currency": "USD"},
		{"symbol": "IBM", "position": "not-a-number", "currency": "USD"},
		{"symbol": "AAPL", "position": "1", "currency": "USD", "assetCategory": "STK"}
	]`)

	n := NewIBFlexNormalizer(zerolog.Nop())
	positions, warnings, err := n.Normalize(payload)

	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Ticker)
	require.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, domain.WarnMalformedRecord, w.Code)
	}
}

func TestIBFlexNormalizeUnknownAssetClass(t *testing.T) {
	payload := []byte(`[
		{"symbol": "XYZ", "position": "1", "currency": "USD", "assetCategory": "OPT"}
	]`)

	n := NewIBFlexNormalizer(zerolog.Nop())
	positions, _, err := n.Normalize(payload)

	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.SecurityTypeUnknown, positions[0].TypeHint)
}

func TestIBFlexNormalizeRejectsUndecodablePayload(t *testing.T) {
	n := NewIBFlexNormalizer(zerolog.Nop())

	_, _, err := n.Normalize([]byte(`{"not": "an array"}`))
	require.Error(t, err)
}
