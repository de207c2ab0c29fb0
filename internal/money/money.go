// Package money parses user-entered amounts and formats them for display.
package money

import (
	"errors"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("amount is not a number")
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrAmountOutOfRange covers amounts with more than two fractional digits
	// or above MaxAmount.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// MaxAmount is the largest amount a numeric(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
}

// Supported reports whether currency has a display symbol.
func Supported(currency string) bool {
	_, ok := symbols[strings.ToUpper(currency)]
	return ok
}

// Currencies lists the currency codes an account may choose.
func Currencies() []string {
	return []string{"USD", "EUR"}
}

// ParseAmount strips thousands separators and parses the rest as a
// non-negative decimal with at most two fractional digits, no larger than
// MaxAmount. "1,234.56" parses to 1234.56. Exponent forms are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	if d.Exponent() < -2 && !d.Equal(d.Truncate(2)) {
		return decimal.Zero, ErrAmountOutOfRange
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrAmountOutOfRange
	}
	return d, nil
}

// Format renders amount with the currency symbol, a thousands separator and
// two fractional digits. Unknown currencies get the raw number back.
func Format(amount decimal.Decimal, currency string) string {
	symbol, ok := symbols[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		return amount.String()
	}
	// Rounding first keeps humanize from carrying a fraction of .995 into "100".
	value := amount.Round(2).InexactFloat64()
	if value < 0 {
		return "-" + symbol + humanize.FormatFloat("#,###.##", -value)
	}
	return symbol + humanize.FormatFloat("#,###.##", value)
}
