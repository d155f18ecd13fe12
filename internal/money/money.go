// Package money parses and formats the marketplace's display prices.
package money

import (
	"errors"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the single currency the deployment trades in.
const DefaultCurrency = "XAF"

var ErrInvalidPrice = errors.New("invalid price")

var nonNumeric = regexp.MustCompile(`[^0-9.\-]+`)

// ParsePrice reads a formatted price such as "$10.00" or "XAF 1,500".
// Currency symbols, spaces and thousands separators are dropped before parsing.
func ParsePrice(s string) (decimal.Decimal, error) {
	clean := nonNumeric.ReplaceAllString(s, "")
	if clean == "" || clean == "-" || clean == "." {
		return decimal.Zero, ErrInvalidPrice
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

// ToMinor rounds an amount half away from zero to the currency's smallest unit.
// XAF has no subunit, so that is a whole franc.
func ToMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Format renders an amount for display, e.g. "XAF 1,500" or "XAF 12.50".
func Format(d decimal.Decimal, currency string) string {
	whole := d.Truncate(0)
	out := humanize.Comma(whole.IntPart())
	if frac := d.Sub(whole).Abs(); !frac.IsZero() {
		// StringFixed keeps the leading "0", drop it.
		out += strings.TrimPrefix(frac.StringFixed(2), "0")
		if d.IsNegative() && whole.IsZero() {
			out = "-" + out
		}
	}
	if currency == "" {
		return out
	}
	return currency + " " + out
}
