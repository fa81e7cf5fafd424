package domain

import "strings"

// SecurityType represents the canonical type of a financial instrument.
type SecurityType string

const (
	// SecurityTypeEquity represents individual stocks/shares
	SecurityTypeEquity SecurityType = "EQUITY"
	// SecurityTypeETF represents Exchange Traded Funds
	SecurityTypeETF SecurityType = "ETF"
	// SecurityTypeETC represents Exchange Traded Commodities
	SecurityTypeETC SecurityType = "ETC"
	// SecurityTypeMutualFund represents mutual funds (some UCITS products)
	SecurityTypeMutualFund SecurityType = "MUTUALFUND"
	// SecurityTypeBond represents fixed-income instruments
	SecurityTypeBond SecurityType = "BOND"
	// SecurityTypeCash represents cash positions (synthetic securities for currency balances)
	SecurityTypeCash SecurityType = "CASH"
	// SecurityTypeUnknown represents unknown type
	SecurityTypeUnknown SecurityType = "UNKNOWN"
)

// ParseSecurityType normalizes a provider-reported type string to a canonical
// SecurityType. Unrecognized values map to UNKNOWN, never to an error: type
// hints are advisory and must not break normalization.
func ParseSecurityType(s string) SecurityType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EQUITY", "STOCK", "COMMON STOCK", "SHARE":
		return SecurityTypeEquity
	case "ETF", "EXCHANGE TRADED FUND":
		return SecurityTypeETF
	case "ETC", "EXCHANGE TRADED COMMODITY":
		return SecurityTypeETC
	case "MUTUALFUND", "MUTUAL FUND", "FUND", "UCITS":
		return SecurityTypeMutualFund
	case "BOND", "FIXED INCOME", "NOTE":
		return SecurityTypeBond
	case "CASH", "CURRENCY", "MONEY":
		return SecurityTypeCash
	default:
		return SecurityTypeUnknown
	}
}

// Valid reports whether t is one of the canonical types.
func (t SecurityType) Valid() bool {
	switch t {
	case SecurityTypeEquity, SecurityTypeETF, SecurityTypeETC,
		SecurityTypeMutualFund, SecurityTypeBond, SecurityTypeCash, SecurityTypeUnknown:
		return true
	}
	return false
}
