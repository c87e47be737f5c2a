package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"struk/internal/core"
)

const indomaret = `{
  "merchant_name": "Indomaret",
  "transaction_date": "2025-07-01",
  "transaction_time": "13:50",
  "items": [
    {"item_name": "MARLBORO BLACK 12'S", "quantity": 1, "unit_price": 26200, "total_price_item": 26200},
    {"item_name": "ULTRA SLIM STRAW 200", "quantity": 2, "unit_price": "3050", "total_price_item": 9999}
  ],
  "subtotal": 32300,
  "discount_amount": null,
  "additional_charges": null,
  "tax_amount": 605,
  "final_total": 31695,
  "tender_type": "TUNAI",
  "amount_paid": 50000,
  "change_given": 17700,
  "category_spending": "Groceries"
}`

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", "  {\"a\":1}\n", `{"a":1}`},
		{"trailing chatter", "```json\n{}\n```\nHope this helps", `{}`},
		{"unterminated", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseExtraction(t *testing.T) {
	r, err := ParseExtraction("```json\n" + indomaret + "\n```")
	require.NoError(t, err)

	require.NotNil(t, r.MerchantName)
	assert.Equal(t, "Indomaret", *r.MerchantName)
	assert.Equal(t, "2025-07-01", r.TransactionDate)
	assert.Equal(t, "13:50", r.TransactionTime)
	require.Len(t, r.Items, 2)
	assert.Equal(t, int64(2620000), r.Items[0].TotalPriceItem.Cents)
	// extractor totals are not trusted
	assert.Equal(t, int64(610000), r.Items[1].TotalPriceItem.Cents)
	assert.Equal(t, int64(3169500), r.FinalTotal.Cents)
	assert.Nil(t, r.DiscountAmount)
	assert.Nil(t, r.AdditionalCharges)
	assert.Equal(t, "Groceries", *r.CategorySpending)
	assert.Empty(t, r.ID)
}

func TestParseExtraction_AbsentOptionalsAreNil(t *testing.T) {
	r, err := ParseExtraction(`{"transaction_date": "2025-07-01", "final_total": 1000}`)
	require.NoError(t, err)

	assert.Nil(t, r.MerchantName)
	assert.Nil(t, r.Subtotal)
	assert.Nil(t, r.TaxAmount)
	assert.Nil(t, r.TenderType)
	assert.Nil(t, r.AmountPaid)
	assert.NotNil(t, r.Items)
	assert.Empty(t, r.Items)
}

func TestParseExtraction_FencedParseErrorKeepsRawText(t *testing.T) {
	raw := "```json\n{\"merchant_name\": \"Indomaret\", \"final_total\": 31695,}\n```"

	_, err := ParseExtraction(raw)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrExtraction))
	var ee *core.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, raw, ee.RawText)
}

func TestParseExtraction_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "I could not read this receipt."},
		{"array", `[1, 2, 3]`},
		{"wrong type", `{"items": "two apples"}`},
		{"object money", `{"final_total": {"value": 10}}`},
		{"negative money", `{"final_total": -5}`},
		{"fractional quantity", `{"items": [{"item_name": "rice", "quantity": 1.5, "unit_price": 10}]}`},
		{"grouped thousands", `{"final_total": "32.300"}`},
		{"grouped thousands with comma", `{"items": [{"item_name": "rice", "unit_price": "12,500"}]}`},
		{"grouped millions", `{"subtotal": "1.250.000"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExtraction(tt.raw)
			var ee *core.ExtractionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.raw, ee.RawText)
		})
	}
}

func TestParseExtraction_StringAmounts(t *testing.T) {
	r, err := ParseExtraction(`{"final_total": "32.30", "subtotal": " 32,3 ", "tax_amount": "605"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3230), r.FinalTotal.Cents)
	assert.Equal(t, int64(3230), r.Subtotal.Cents)
	assert.Equal(t, int64(60500), r.TaxAmount.Cents)
}

func TestQuantity(t *testing.T) {
	q, err := quantity("")
	require.NoError(t, err)
	assert.Equal(t, int64(1), q)

	q, err = quantity("3.0")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q)

	_, err = quantity("0.5")
	assert.Error(t, err)
}
