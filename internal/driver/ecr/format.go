// internal/driver/ecr/format.go
package ecr

import (
	"github.com/shopspring/decimal"
)

const (
	// MaxDescriptionLength is the longest article description the register prints
	MaxDescriptionLength = 24

	moneyPlaces    = 2
	quantityPlaces = 3
)

// roundMoney rounds half away from zero to two places
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// formatMoney renders the shortest invariant form of an already rounded value (12.5, 10, 12.35)
func formatMoney(d decimal.Decimal) string {
	return roundMoney(d).String()
}

// formatFixed2 renders exactly two decimals
func formatFixed2(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}

// formatQuantity renders exactly three decimals
func formatQuantity(d decimal.Decimal) string {
	return d.StringFixed(quantityPlaces)
}

// truncateDescription cuts a description to MaxDescriptionLength characters
func truncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxDescriptionLength {
		return s
	}
	return string(runes[:MaxDescriptionLength])
}

// Normalized returns a copy of the item with price and rebate rounded and the
// description cut to the printable length. The receiver is left untouched.
func (i Item) Normalized() Item {
	i.Price = roundMoney(i.Price)
	i.Rebate = roundMoney(i.Rebate)
	i.Description = truncateDescription(i.Description)
	return i
}

// Normalized returns a copy of the payment with its value rounded
func (p Payment) Normalized() Payment {
	p.Value = roundMoney(p.Value)
	return p
}
