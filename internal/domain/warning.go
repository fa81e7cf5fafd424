package domain

import "fmt"

// WarningCode identifies a class of non-fatal condition surfaced by the
// pipeline. Warnings travel alongside results; they are never raised as
// errors because one bad record or one unavailable tier must not abort an
// otherwise resolvable batch.
type WarningCode string

const (
	// WarnMalformedRecord - a provider record missing both ticker and quantity
	// was dropped during normalization.
	WarnMalformedRecord WarningCode = "MALFORMED_RECORD"
	// WarnMixedCurrencySameTicker - same ticker reported in different
	// currencies; the positions were kept separate, not merged.
	WarnMixedCurrencySameTicker WarningCode = "MIXED_CURRENCY_SAME_TICKER"
	// WarnAuthoritativeLookupTimeout - an authoritative classification call
	// timed out; the ticker fell through to the heuristic tier.
	WarnAuthoritativeLookupTimeout WarningCode = "AUTHORITATIVE_LOOKUP_TIMEOUT"
	// WarnAuthoritativeLookupFailure - an authoritative classification call
	// failed; the ticker fell through to the heuristic tier.
	WarnAuthoritativeLookupFailure WarningCode = "AUTHORITATIVE_LOOKUP_FAILURE"
	// WarnPersistentStoreUnavailable - the persistent tier was skipped for
	// the run because the store was unreachable.
	WarnPersistentStoreUnavailable WarningCode = "PERSISTENT_STORE_UNAVAILABLE"
	// WarnEmptyInput - the pipeline received no provider payloads; treated as
	// a valid empty result.
	WarnEmptyInput WarningCode = "EMPTY_INPUT"
)

// Warning is a structured non-fatal diagnostic attached to a result.
type Warning struct {
	Code       WarningCode `json:"code"`
	Ticker     string      `json:"ticker,omitempty"`
	ProviderID string      `json:"provider_id,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

func (w Warning) String() string {
	switch {
	case w.Ticker != "" && w.ProviderID != "":
		return fmt.Sprintf("%s [%s/%s]: %s", w.Code, w.ProviderID, w.Ticker, w.Detail)
	case w.Ticker != "":
		return fmt.Sprintf("%s [%s]: %s", w.Code, w.Ticker, w.Detail)
	default:
		return fmt.Sprintf("%s: %s", w.Code, w.Detail)
	}
}

// Warningf builds a Warning with a formatted detail message.
func Warningf(code WarningCode, ticker, providerID, format string, args ...interface{}) Warning {
	return Warning{
		Code:       code,
		Ticker:     ticker,
		ProviderID: providerID,
		Detail:     fmt.Sprintf(format, args...),
	}
}
