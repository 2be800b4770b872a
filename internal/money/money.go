// Package money converts stored document values to decimals and dates.
package money

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// FromValue reads a stored numeric value. Strings are rejected: a balance
// stored as text is a data problem, not something to parse around.
func FromValue(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case nil:
		return decimal.Zero, fmt.Errorf("value is missing")
	default:
		return decimal.Zero, fmt.Errorf("value %v is %T, not a number", v, v)
	}
}

// Store renders d for a document body.
func Store(d decimal.Decimal) float64 { return d.InexactFloat64() }

// ParseDate accepts "2006-01-02" or RFC 3339 and returns UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

// TimeValue reads a stored date: a time, or a string in a ParseDate layout.
func TimeValue(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		t, err := ParseDate(x)
		if err != nil {
			t, err = time.Parse(time.RFC3339Nano, x)
		}
		return t.UTC(), err == nil
	default:
		return time.Time{}, false
	}
}
