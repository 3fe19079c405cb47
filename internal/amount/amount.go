// Package amount converts between base units and decimal token amounts.
package amount

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

var (
	decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	integerPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Amount is a token quantity in both representations.
type Amount struct {
	Base    int64  `json:"base_units"`
	Decimal string `json:"decimal"`
}

// Normalize accepts exactly one of a base-unit integer or a decimal string
// and returns both forms.
func Normalize(baseUnits, dec string, decimals int) (Amount, error) {
	baseUnits = strings.TrimSpace(baseUnits)
	dec = strings.TrimSpace(dec)
	if baseUnits != "" && dec != "" {
		return Amount{}, clierr.New(clierr.CodeUsage, "use either --amount or --amount-decimal, not both")
	}
	if baseUnits == "" && dec == "" {
		return Amount{}, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return Amount{}, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}

	if baseUnits != "" {
		if !integerPattern.MatchString(baseUnits) {
			return Amount{}, clierr.New(clierr.CodeUsage, "--amount must be a non-negative integer string")
		}
		d, err := decimal.NewFromString(baseUnits)
		if err != nil {
			return Amount{}, clierr.Wrap(clierr.CodeUsage, "invalid --amount", err)
		}
		base, err := toInt64(d)
		if err != nil {
			return Amount{}, err
		}
		return Amount{Base: base, Decimal: FormatBase(base, decimals)}, nil
	}

	if !decimalPattern.MatchString(dec) {
		return Amount{}, clierr.New(clierr.CodeUsage, "--amount-decimal must be in decimal form like 1.23")
	}
	base, err := ToBase(dec, decimals)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Base: base, Decimal: FormatBase(base, decimals)}, nil
}

// ToBase converts a decimal string to base units, refusing extra precision.
func ToBase(dec string, decimals int) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(dec))
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUsage, "invalid decimal amount", err)
	}
	if d.IsNegative() {
		return 0, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	return toInt64(scaled)
}

// FormatBase renders base units as a decimal string without trailing zeros.
func FormatBase(base int64, decimals int) string {
	return decimal.New(base, int32(-decimals)).String()
}

func toInt64(d decimal.Decimal) (int64, error) {
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, clierr.New(clierr.CodeUsage, "amount is too large")
	}
	return d.IntPart(), nil
}
