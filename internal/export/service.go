package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"struk/internal/core"
	"struk/internal/log"
)

const (
	receiptsSheet = "Receipts"
	itemsSheet    = "Items"
)

// ReceiptLister is the read side of the receipt store.
type ReceiptLister interface {
	List(ctx context.Context, userID string, r *core.DateRange) ([]core.Receipt, error)
}

// Service produces XLSX workbooks of a user's receipts.
type Service struct {
	receipts ReceiptLister
	logger   *log.Logger
}

func NewService(receipts ReceiptLister, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{receipts: receipts, logger: logger.WithComponent(log.ComponentReceipts)}
}

// ExportReceiptsXLSX returns a workbook with one row per receipt and one row per item.
// A nil range exports everything.
func (s *Service) ExportReceiptsXLSX(ctx context.Context, userID string, window *core.DateRange) ([]byte, error) {
	start := time.Now()

	recs, err := s.receipts.List(ctx, userID, window)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	buf, err := Workbook(recs)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Receipts exported",
		log.FieldUserID, userID,
		log.FieldCount, len(recs),
		log.FieldDuration, time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// Workbook renders receipts into an XLSX document.
func Workbook(recs []core.Receipt) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), receiptsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	if err := writeRow(f, receiptsSheet, 1, []any{
		"Receipt ID", "Date", "Time", "Merchant", "Category", "Tender",
		"Subtotal", "Discount", "Charges", "Tax", "Final Total", "Paid", "Change",
	}); err != nil {
		return nil, err
	}
	if err := writeRow(f, itemsSheet, 1, []any{"Receipt ID", "Item", "Quantity", "Unit Price", "Total"}); err != nil {
		return nil, err
	}

	itemRow := 2
	for i, r := range recs {
		if err := writeRow(f, receiptsSheet, i+2, []any{
			r.ID,
			r.TransactionDate,
			r.TransactionTime,
			deref(r.MerchantName),
			r.Category(),
			deref(r.TenderType),
			amount(r.Subtotal),
			amount(r.DiscountAmount),
			amount(r.AdditionalCharges),
			amount(r.TaxAmount),
			amount(r.FinalTotal),
			amount(r.AmountPaid),
			amount(r.ChangeGiven),
		}); err != nil {
			return nil, err
		}
		for _, it := range r.Items {
			if err := writeRow(f, itemsSheet, itemRow, []any{
				r.ID, it.ItemName, it.Quantity, amount(&it.UnitPrice), amount(&it.TotalPriceItem),
			}); err != nil {
				return nil, err
			}
			itemRow++
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(receiptsSheet, "A", "A", 38) // id
	_ = f.SetColWidth(receiptsSheet, "D", "D", 28) // merchant
	_ = f.SetColWidth(itemsSheet, "A", "A", 38)
	_ = f.SetColWidth(itemsSheet, "B", "B", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// amount converts minor units to a spreadsheet number; absent values stay blank.
func amount(m *core.Money) any {
	if m == nil {
		return nil
	}
	return float64(m.Cents) / 100
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
