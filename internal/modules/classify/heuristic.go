package classify

import (
	"strings"

	"github.com/aristath/custodian/internal/domain"
)

// HeuristicClassify derives a best-effort security type from the ticker
// string and the provider-supplied hint. It is deterministic and total: every
// input yields a type. The default is EQUITY because the downstream risk
// mapping treats equity as the most severe case, and over-estimating risk is
// the safe direction for an unrecognized instrument.
//
// Heuristic answers are provisional: they are cached briefly in memory but
// never written to the persistent tier.
func HeuristicClassify(ticker string, hint domain.SecurityType) domain.SecurityType {
	// Explicit cash markers win outright.
	if strings.HasPrefix(ticker, domain.CashTickerPrefix) || hint == domain.SecurityTypeCash {
		return domain.SecurityTypeCash
	}

	// A usable provider hint beats string guessing.
	if hint != "" && hint != domain.SecurityTypeUnknown && hint.Valid() {
		return hint
	}

	upper := strings.ToUpper(ticker)

	// Strip an exchange suffix like ".US" or ".LN" before pattern checks.
	base := upper
	if idx := strings.IndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}

	switch {
	case strings.HasSuffix(base, "ETC"):
		return domain.SecurityTypeETC
	case strings.Contains(base, "ETF"):
		return domain.SecurityTypeETF
	// US mutual fund tickers are five letters ending in X (VFIAX, SWPPX).
	case len(base) == 5 && strings.HasSuffix(base, "X") && isAlpha(base):
		return domain.SecurityTypeMutualFund
	default:
		return domain.SecurityTypeEquity
	}
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
