// Package money converts between decimal major-unit amounts and the integer
// minor units used by payment gateways.
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
)

// zeroDecimal currencies have no minor unit.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true,
	"VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// threeDecimal currencies have 1000 minor units per major unit.
var threeDecimal = map[string]bool{
	"BHD": true, "JOD": true, "KWD": true, "OMR": true, "TND": true,
}

// NormalizeCurrency upper-cases an ISO 4217 code and rejects malformed input.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", domainErrors.NewValidationError("currency", "must be a 3-letter ISO 4217 code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", domainErrors.NewValidationError("currency", "must be a 3-letter ISO 4217 code")
		}
	}
	return code, nil
}

// Exponent returns the number of minor-unit digits for a currency.
func Exponent(currency string) (int32, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return 0, err
	}
	switch {
	case zeroDecimal[code]:
		return 0, nil
	case threeDecimal[code]:
		return 3, nil
	default:
		return 2, nil
	}
}

// Normalizer enforces the per-transaction ceiling while converting amounts.
type Normalizer struct {
	maxAmount decimal.Decimal
}

// NewNormalizer creates a Normalizer. A zero maxAmount disables the ceiling.
func NewNormalizer(maxAmount decimal.Decimal) *Normalizer {
	return &Normalizer{maxAmount: maxAmount}
}

// MaxAmount returns the configured ceiling in major units.
func (n *Normalizer) MaxAmount() decimal.Decimal {
	return n.maxAmount
}

// ToMinorUnits rounds amount half away from zero to the currency precision and
// returns it in minor units.
func (n *Normalizer) ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return 0, err
	}
	if !amount.IsPositive() {
		return 0, domainErrors.NewValidationError("amount", "must be greater than zero")
	}
	if n.maxAmount.IsPositive() && amount.GreaterThan(n.maxAmount) {
		return 0, domainErrors.NewValidationError("amount", "exceeds the per-transaction limit of %s", n.maxAmount.String())
	}

	minor := amount.Round(exp).Shift(exp)
	if !minor.IsPositive() {
		return 0, domainErrors.NewValidationError("amount", "is smaller than the currency's minor unit")
	}
	bi := minor.BigInt()
	if !bi.IsInt64() {
		return 0, domainErrors.NewValidationError("amount", "is too large")
	}
	return bi.Int64(), nil
}

// FromMinorUnits converts a minor-unit integer back into a decimal amount.
func (n *Normalizer) FromMinorUnits(minor int64, currency string) (decimal.Decimal, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -exp), nil
}
