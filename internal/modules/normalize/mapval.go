package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// getString safely extracts a string value from a decoded JSON map.
func getString(m map[string]interface{}, key string) string {
	if val, exists := m[key]; exists {
		if str, ok := val.(string); ok {
			return str
		}
		// Try to convert other types to string
		return fmt.Sprintf("%v", val)
	}
	return ""
}

// getDecimal safely extracts a decimal value from a decoded JSON map.
// Returns decimal.Zero and false when the key is absent or not numeric.
func getDecimal(m map[string]interface{}, key string) (decimal.Decimal, bool) {
	val, exists := m[key]
	if !exists {
		return decimal.Zero, false
	}
	return decimalFromValue(val)
}

// decimalFromValue converts a decoded JSON value to a decimal.
func decimalFromValue(val interface{}) (decimal.Decimal, bool) {
	switch v := val.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		if v == "" {
			return decimal.Zero, false
		}
		if d, err := decimal.NewFromString(v); err == nil {
			return d, true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return decimal.NewFromFloat(f), true
		}
		return decimal.Zero, false
	default:
		return decimal.Zero, false
	}
}
