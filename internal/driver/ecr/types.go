// internal/driver/ecr/types.go
package ecr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxCategory is the register's VAT group of an article
type TaxCategory string

const (
	TaxCategoryA TaxCategory = "A"
	TaxCategoryB TaxCategory = "B"
	TaxCategoryC TaxCategory = "C"
	TaxCategoryD TaxCategory = "D"
	TaxCategoryE TaxCategory = "E"
	TaxCategoryF TaxCategory = "F"
	TaxCategoryG TaxCategory = "G"
	TaxCategoryH TaxCategory = "H"
)

var taxCategoryTokens = map[TaxCategory]string{
	TaxCategoryA: "A",
	TaxCategoryB: "B",
	TaxCategoryC: "C",
	TaxCategoryD: "D",
	TaxCategoryE: "E",
	TaxCategoryF: "F",
	TaxCategoryG: "G",
	TaxCategoryH: "H",
}

// Token returns the wire token of the tax category
func (t TaxCategory) Token() (string, error) {
	token, ok := taxCategoryTokens[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaxCategory, string(t))
	}
	return token, nil
}

// PaymentMethod is the tender type of a payment
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodCheck  PaymentMethod = "CHECK"
	PaymentMethodCredit PaymentMethod = "CREDIT"
)

var paymentMethodTokens = map[PaymentMethod]string{
	PaymentMethodCash:   "CASH",
	PaymentMethodCard:   "CARD",
	PaymentMethodCheck:  "CHECK",
	PaymentMethodCredit: "CREDIT",
}

// Token returns the wire token of the payment method
func (m PaymentMethod) Token() (string, error) {
	token, ok := paymentMethodTokens[m]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, string(m))
	}
	return token, nil
}

// ReportType selects a fiscal report
type ReportType string

const (
	ReportTypeX ReportType = "X"
	ReportTypeZ ReportType = "Z"
)

// Item is one article line of a receipt
type Item struct {
	ItemID      string          `json:"item_id" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Rebate      decimal.Decimal `json:"rebate"`
	Amount      decimal.Decimal `json:"amount"`
	TaxCategory TaxCategory     `json:"tax_category" binding:"required"`
	Description string          `json:"description"`
}

// Payment is one tender applied to a receipt
type Payment struct {
	Value  decimal.Decimal `json:"value"`
	Method PaymentMethod   `json:"method" binding:"required"`
}

// ProgramLine carries the totals printed as free text on the receipt
type ProgramLine struct {
	ReceiptNumber     string          `json:"receipt_number"`
	TotalCashPaid     decimal.Decimal `json:"total_cash_paid"`
	TotalInvoiceValue decimal.Decimal `json:"total_invoice_value"`
	BonusPoints       decimal.Decimal `json:"bonus_points"`
	TotalPoints       decimal.Decimal `json:"total_points"`
}

// SaleParameters is everything needed to print one receipt
type SaleParameters struct {
	OperatorName string      `json:"operator_name"`
	Items        []Item      `json:"items"`
	Payments     []Payment   `json:"payments"`
	ProgramLine  ProgramLine `json:"program_line"`
}

// ReturnValue is one entry of a print sequence
type ReturnValue struct {
	ID     int    `json:"id"`
	Packet Packet `json:"-"`
}
