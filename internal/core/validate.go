package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BalanceMode controls how the finalTotal consistency check is applied.
type BalanceMode string

const (
	BalanceOff    BalanceMode = "off"
	BalanceWarn   BalanceMode = "warn"
	BalanceStrict BalanceMode = "strict"
)

// IsValid returns true if the mode is known
func (m BalanceMode) IsValid() bool {
	switch m {
	case BalanceOff, BalanceWarn, BalanceStrict:
		return true
	default:
		return false
	}
}

var ErrUnbalanced = errors.New("final total does not balance")

// BalancePolicy checks finalTotal against subtotal - discount + charges + tax.
type BalancePolicy struct {
	Mode BalanceMode
	// ToleranceBP is the accepted deviation in basis points of finalTotal.
	ToleranceBP int64
}

// DefaultBalancePolicy warns on deviations above 5%.
func DefaultBalancePolicy() BalancePolicy {
	return BalancePolicy{Mode: BalanceWarn, ToleranceBP: 500}
}

// ValidateReceipt checks that every required field is present and well formed.
// merchantName is optional.
func ValidateReceipt(r *Receipt) error {
	if strings.TrimSpace(r.TransactionDate) == "" {
		return MissingField("transactionDate")
	}
	if _, err := time.Parse(DateLayout, strings.TrimSpace(r.TransactionDate)); err != nil {
		return NewValidationError("transactionDate", "must be a date in YYYY-MM-DD format")
	}
	if strings.TrimSpace(r.TransactionTime) == "" {
		return MissingField("transactionTime")
	}
	if !validTimeOfDay(strings.TrimSpace(r.TransactionTime)) {
		return NewValidationError("transactionTime", "must be a time in HH:MM format")
	}
	if r.Items == nil {
		return MissingField("items")
	}
	for i, it := range r.Items {
		if it.Quantity < 0 {
			return NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must not be negative")
		}
		if it.UnitPrice.IsNegative() {
			return NewValidationError(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
		}
		if total, ok := it.UnitPrice.CheckedMul(it.Quantity); !ok || total.Cents > MaxCents {
			return NewValidationError(fmt.Sprintf("items[%d].quantity", i), "item total exceeds the maximum amount")
		}
	}
	if r.FinalTotal == nil {
		return MissingField("finalTotal")
	}
	if r.FinalTotal.IsNegative() {
		return NewValidationError("finalTotal", "must not be negative")
	}
	if r.FinalTotal.Cents > MaxCents {
		return NewValidationError("finalTotal", "exceeds the maximum amount")
	}
	if r.TenderType == nil || strings.TrimSpace(*r.TenderType) == "" {
		return MissingField("tenderType")
	}
	if r.CategorySpending == nil || strings.TrimSpace(*r.CategorySpending) == "" {
		return MissingField("categorySpending")
	}
	return nil
}

func validTimeOfDay(s string) bool {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ExpectedTotal returns subtotal - discount + charges + tax, or false when there is no subtotal.
func ExpectedTotal(r *Receipt) (Money, bool) {
	if r.Subtotal == nil {
		return Money{}, false
	}
	expected := *r.Subtotal
	if r.DiscountAmount != nil {
		expected = expected.Sub(*r.DiscountAmount)
	}
	if r.AdditionalCharges != nil {
		expected = expected.Add(*r.AdditionalCharges)
	}
	if r.TaxAmount != nil {
		expected = expected.Add(*r.TaxAmount)
	}
	return expected, true
}

// CheckBalance returns an error wrapping ErrUnbalanced when finalTotal deviates
// from the expected total by more than the tolerance. Receipts without subtotal
// or finalTotal are not checked.
func (p BalancePolicy) CheckBalance(r *Receipt) error {
	if p.Mode == BalanceOff || r.FinalTotal == nil {
		return nil
	}
	expected, ok := ExpectedTotal(r)
	if !ok {
		return nil
	}
	diff := r.FinalTotal.Cents - expected.Cents
	if diff < 0 {
		diff = -diff
	}
	tolerance := MulDivRound(r.FinalTotal.Cents, p.ToleranceBP, 10000)
	if tolerance < 1 {
		tolerance = 1
	}
	if diff > tolerance {
		return fmt.Errorf("%w: expected %s, got %s", ErrUnbalanced, expected, *r.FinalTotal)
	}
	return nil
}

// Apply runs the balance check according to the mode. It returns a warning
// message in warn mode and a ValidationError in strict mode.
func (p BalancePolicy) Apply(r *Receipt) (warning string, err error) {
	checkErr := p.CheckBalance(r)
	if checkErr == nil {
		return "", nil
	}
	if p.Mode == BalanceStrict {
		return "", NewValidationError("finalTotal", checkErr.Error())
	}
	return checkErr.Error(), nil
}
