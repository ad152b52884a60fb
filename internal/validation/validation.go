// Package validation holds the request-shape checks the HTTP layer applies
// before calling into the core.
package validation

import (
	"regexp"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// Ticker validates an instrument ticker: 2-10 uppercase letters.
func Ticker(ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return apperr.Validation("ticker must be 2-10 uppercase letters")
	}
	return nil
}

// UserName validates a new user's display name.
func UserName(name string) error {
	if len(name) < 3 {
		return apperr.Validation("name must be at least 3 characters")
	}
	return nil
}

// PositiveAmount validates a quantity, price or balance amount.
func PositiveAmount(amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be positive")
	}
	return nil
}

// Side validates a BUY/SELL direction string.
func Side(side models.Side) error {
	if side != models.Buy && side != models.Sell {
		return apperr.Validation("direction must be BUY or SELL")
	}
	return nil
}
