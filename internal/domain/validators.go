package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

	hundred = decimal.NewFromInt(100)
)

// ValidateCurrency checks if a currency code is ISO 4217.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive (in minor units).
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidatePercentage checks that p lies in [0, 100] with at most two decimal places.
func ValidatePercentage(name string, p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return fmt.Errorf("%s must be between 0 and 100, got %s", name, p.String())
	}
	if !p.Equal(p.Truncate(2)) {
		return fmt.Errorf("%s allows at most two decimal places, got %s", name, p.String())
	}
	return nil
}
