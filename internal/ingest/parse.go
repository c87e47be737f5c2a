package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"struk/internal/core"
)

// extractionSchema accepts the extractor's snake_case output. Money may be
// a number or a numeric string and every field may be null. A string amount
// carries at most two decimals: "32.300" is thousands grouping, not 32.30.
const extractionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "merchant_name":      {"type": ["string", "null"]},
    "transaction_date":   {"type": ["string", "null"]},
    "transaction_time":   {"type": ["string", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "item_name":        {"type": ["string", "null"]},
          "quantity":         {"$ref": "#/$defs/amount"},
          "unit_price":       {"$ref": "#/$defs/amount"},
          "total_price_item": {"$ref": "#/$defs/amount"}
        }
      }
    },
    "subtotal":           {"$ref": "#/$defs/amount"},
    "discount_amount":    {"$ref": "#/$defs/amount"},
    "additional_charges": {"$ref": "#/$defs/amount"},
    "tax_amount":         {"$ref": "#/$defs/amount"},
    "final_total":        {"$ref": "#/$defs/amount"},
    "tender_type":        {"type": ["string", "null"]},
    "amount_paid":        {"$ref": "#/$defs/amount"},
    "change_given":       {"$ref": "#/$defs/amount"},
    "category_spending":  {"type": ["string", "null"]}
  },
  "$defs": {
    "amount": {
      "type": ["number", "string", "null"],
      "pattern": "^ *[0-9]+([.,][0-9]{1,2})? *$"
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", strings.NewReader(extractionSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

type extraction struct {
	MerchantName      *string          `json:"merchant_name"`
	TransactionDate   *string          `json:"transaction_date"`
	TransactionTime   *string          `json:"transaction_time"`
	Items             []extractionItem `json:"items"`
	Subtotal          *core.Money      `json:"subtotal"`
	DiscountAmount    *core.Money      `json:"discount_amount"`
	AdditionalCharges *core.Money      `json:"additional_charges"`
	TaxAmount         *core.Money      `json:"tax_amount"`
	FinalTotal        *core.Money      `json:"final_total"`
	TenderType        *string          `json:"tender_type"`
	AmountPaid        *core.Money      `json:"amount_paid"`
	ChangeGiven       *core.Money      `json:"change_given"`
	CategorySpending  *string          `json:"category_spending"`
}

type extractionItem struct {
	ItemName       *string     `json:"item_name"`
	Quantity       json.Number `json:"quantity"`
	UnitPrice      *core.Money `json:"unit_price"`
	TotalPriceItem *core.Money `json:"total_price_item"`
}

// StripFences removes a leading ```json or ``` fence and everything from the
// last closing fence on. Unfenced text is returned trimmed.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	var body string
	switch {
	case strings.HasPrefix(s, "```json"):
		body = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		body = s[len("```"):]
	default:
		return s
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ParseExtraction turns raw extractor text into a draft receipt. Any
// failure is an *core.ExtractionError carrying the untouched raw text.
func ParseExtraction(raw string) (core.Receipt, error) {
	payload := []byte(StripFences(raw))

	var generic any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return core.Receipt{}, &core.ExtractionError{Reason: "output is not valid JSON", RawText: raw, Cause: err}
	}
	schema, err := compiledSchema()
	if err != nil {
		return core.Receipt{}, &core.ExtractionError{Reason: "schema unavailable", RawText: raw, Cause: err}
	}
	if err := schema.Validate(generic); err != nil {
		return core.Receipt{}, &core.ExtractionError{Reason: "output does not match the receipt schema", RawText: raw, Cause: err}
	}

	var ex extraction
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&ex); err != nil {
		return core.Receipt{}, &core.ExtractionError{Reason: "output has invalid values", RawText: raw, Cause: err}
	}

	items := make([]core.Item, 0, len(ex.Items))
	for i, it := range ex.Items {
		qty, err := quantity(it.Quantity)
		if err != nil {
			return core.Receipt{}, &core.ExtractionError{
				Reason:  fmt.Sprintf("items[%d].quantity is invalid", i),
				RawText: raw,
				Cause:   err,
			}
		}
		item := core.Item{Quantity: qty}
		if it.ItemName != nil {
			item.ItemName = strings.TrimSpace(*it.ItemName)
		}
		if it.UnitPrice != nil {
			item.UnitPrice = *it.UnitPrice
		}
		items = append(items, item)
	}

	r := core.Receipt{
		MerchantName:      trimmed(ex.MerchantName),
		TransactionDate:   deref(ex.TransactionDate),
		TransactionTime:   deref(ex.TransactionTime),
		Items:             items,
		Subtotal:          ex.Subtotal,
		DiscountAmount:    ex.DiscountAmount,
		AdditionalCharges: ex.AdditionalCharges,
		TaxAmount:         ex.TaxAmount,
		FinalTotal:        ex.FinalTotal,
		TenderType:        trimmed(ex.TenderType),
		AmountPaid:        ex.AmountPaid,
		ChangeGiven:       ex.ChangeGiven,
		CategorySpending:  trimmed(ex.CategorySpending),
	}
	r.RecomputeItemTotals()
	return r, nil
}

// quantity accepts whole numbers, also written as 2.0 or "2". Absent means 1.
func quantity(n json.Number) (int64, error) {
	if n == "" {
		return 1, nil
	}
	cents, err := core.ParseDecimalToCents(n.String())
	if err != nil {
		return 0, err
	}
	if cents%100 != 0 {
		return 0, fmt.Errorf("quantity %s is not a whole number", n)
	}
	return cents / 100, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
