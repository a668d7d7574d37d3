package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MaxMinor is the largest charge the payment provider accepts, in minor
// units.
const MaxMinor = 99_999_999

var maxAmount = decimal.New(MaxMinor, -2)

// ErrInvalidAmount is returned for empty, non-numeric, zero, negative or
// oversized amounts.
var ErrInvalidAmount = errors.New("amount must be a positive number")

// Raw is an amount as received at the HTTP boundary. Clients send either a
// JSON number or a numeric string; both are kept verbatim for Parse.
type Raw string

func (r *Raw) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Raw(s)
		return nil
	}
	// keep anything else (numbers, booleans, objects) for Parse to reject
	*r = Raw(b)
	return nil
}

// Parse converts a boundary amount into a decimal. It rejects anything
// that is not a finite positive number, and amounts whose minor units
// would exceed MaxMinor, so ToMinor never overflows on a parsed amount.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Mul(hundred).Round(0).GreaterThan(decimal.NewFromInt(MaxMinor)) {
		return decimal.Zero, fmt.Errorf("%w: %q exceeds %s", ErrInvalidAmount, raw, maxAmount.StringFixed(2))
	}
	return d, nil
}

// ToMinor converts to integer minor units, rounding half away from zero.
// Truncating here would systematically underbill.
func ToMinor(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Float renders a decimal for JSON responses.
func Float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
