package sheets

import (
	"context"
	"strconv"

	"struk/internal/core"
)

// Ports for outbound adapters.
type (
	// ReceiptMirror keeps one row per receipt in an external sheet.
	ReceiptMirror interface {
		// UpsertReceipt replaces the row of the receipt, appending it when absent.
		UpsertReceipt(ctx context.Context, userID string, r core.Receipt) (rowRef string, err error)

		// DeleteReceipt removes the row of the receipt. A missing row is not an error.
		DeleteReceipt(ctx context.Context, userID, receiptID string) error
	}
)

// Header is the first row of a mirror sheet.
var Header = []string{"User ID", "Receipt ID", "Date", "Time", "Merchant", "Category", "Tender", "Items", "Final Total"}

// Row renders a receipt in Header order. Money is written as a plain decimal.
func Row(userID string, r core.Receipt) []string {
	merchant := ""
	if r.MerchantName != nil {
		merchant = *r.MerchantName
	}
	tender := ""
	if r.TenderType != nil {
		tender = *r.TenderType
	}
	return []string{
		userID,
		r.ID,
		r.TransactionDate,
		r.TransactionTime,
		merchant,
		r.Category(),
		tender,
		strconv.Itoa(len(r.Items)),
		r.Total().String(),
	}
}
