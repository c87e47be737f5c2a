package core

import (
	"strings"
	"time"
)

const (
	// DateLayout is the calendar date format of transactionDate.
	DateLayout = "2006-01-02"
	// DefaultCurrency is applied to profiles saved without one.
	DefaultCurrency = "IDR"
	// UncategorizedLabel replaces absent or blank categories in aggregations.
	UncategorizedLabel = "uncategorized"
)

type (
	// Item is one purchased line of a receipt. TotalPriceItem is always
	// derived from Quantity and UnitPrice.
	Item struct {
		ItemName       string `json:"itemName"`
		Quantity       int64  `json:"quantity"`
		UnitPrice      Money  `json:"unitPrice"`
		TotalPriceItem Money  `json:"totalPriceItem"`
	}

	// Receipt is one parsed purchase transaction. Optional fields are nil when not provided.
	Receipt struct {
		ID                string  `json:"id"`
		MerchantName      *string `json:"merchantName"`
		TransactionDate   string  `json:"transactionDate"`
		TransactionTime   string  `json:"transactionTime"`
		Items             []Item  `json:"items"`
		Subtotal          *Money  `json:"subtotal"`
		DiscountAmount    *Money  `json:"discountAmount"`
		AdditionalCharges *Money  `json:"additionalCharges"`
		TaxAmount         *Money  `json:"taxAmount"`
		FinalTotal        *Money  `json:"finalTotal"`
		TenderType        *string `json:"tenderType"`
		AmountPaid        *Money  `json:"amountPaid"`
		ChangeGiven       *Money  `json:"changeGiven"`
		CategorySpending  *string `json:"categorySpending"`
	}

	// UserProfile is the financial profile used as the income baseline.
	UserProfile struct {
		Occupation     string `json:"occupation"`
		Income         *Money `json:"income"`
		FinancialGoals string `json:"financialGoals"`
		Currency       string `json:"currency"`
	}

	// UserDocument is the aggregate persisted per user.
	UserDocument struct {
		UserID    string       `json:"userId"`
		Profile   *UserProfile `json:"profile,omitempty"`
		Receipts  []Receipt    `json:"receipts"`
		Version   int64        `json:"version"`
		UpdatedAt time.Time    `json:"updatedAt"`
	}

	// DateRange is an inclusive range of calendar dates.
	DateRange struct {
		Start time.Time
		End   time.Time
	}
)

// NewDateRange parses two YYYY-MM-DD dates into an inclusive range.
func NewDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, NewValidationError("startDate", "must be a date in YYYY-MM-DD format")
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, NewValidationError("endDate", "must be a date in YYYY-MM-DD format")
	}
	if e.Before(s) {
		return DateRange{}, NewValidationError("endDate", "must not be before startDate")
	}
	return DateRange{Start: s, End: e}, nil
}

// Contains reports whether the calendar date d lies inside the range.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Date parses TransactionDate. Full RFC 3339 timestamps are reduced to their date part.
func (r Receipt) Date() (time.Time, bool) {
	s := strings.TrimSpace(r.TransactionDate)
	if s == "" {
		return time.Time{}, false
	}
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, true
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Total returns FinalTotal or zero when absent.
func (r Receipt) Total() Money {
	if r.FinalTotal == nil {
		return Money{}
	}
	return *r.FinalTotal
}

// Category returns the lower-cased category label, defaulting to UncategorizedLabel.
func (r Receipt) Category() string {
	if r.CategorySpending == nil {
		return UncategorizedLabel
	}
	c := strings.ToLower(strings.TrimSpace(*r.CategorySpending))
	if c == "" {
		return UncategorizedLabel
	}
	return c
}

// RecomputeItemTotals derives every TotalPriceItem from quantity and unit price.
func (r *Receipt) RecomputeItemTotals() {
	for i := range r.Items {
		r.Items[i].TotalPriceItem = r.Items[i].UnitPrice.Mul(r.Items[i].Quantity)
	}
}

// Clone returns a deep copy so cached or stored snapshots are never shared.
func (r Receipt) Clone() Receipt {
	c := r
	if r.Items != nil {
		c.Items = append([]Item(nil), r.Items...)
	}
	c.MerchantName = cloneString(r.MerchantName)
	c.TenderType = cloneString(r.TenderType)
	c.CategorySpending = cloneString(r.CategorySpending)
	c.Subtotal = cloneMoney(r.Subtotal)
	c.DiscountAmount = cloneMoney(r.DiscountAmount)
	c.AdditionalCharges = cloneMoney(r.AdditionalCharges)
	c.TaxAmount = cloneMoney(r.TaxAmount)
	c.FinalTotal = cloneMoney(r.FinalTotal)
	c.AmountPaid = cloneMoney(r.AmountPaid)
	c.ChangeGiven = cloneMoney(r.ChangeGiven)
	return c
}

// MonthlyIncome returns the profile income or zero when unset.
func (p *UserProfile) MonthlyIncome() Money {
	if p == nil || p.Income == nil {
		return Money{}
	}
	return *p.Income
}

// FindReceipt returns the index of the receipt with the given id or -1.
func (d *UserDocument) FindReceipt(id string) int {
	for i := range d.Receipts {
		if d.Receipts[i].ID == id {
			return i
		}
	}
	return -1
}

// StringPtr is a convenience for optional string fields.
func StringPtr(s string) *string { return &s }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneMoney(m *Money) *Money {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
