package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"struk/internal/core"
)

type stubLister struct {
	recs   []core.Receipt
	err    error
	window *core.DateRange
}

func (s *stubLister) List(_ context.Context, _ string, r *core.DateRange) ([]core.Receipt, error) {
	s.window = r
	return s.recs, s.err
}

func sample() []core.Receipt {
	return []core.Receipt{{
		ID:              "r1",
		MerchantName:    core.StringPtr("Indomaret"),
		TransactionDate: "2025-06-03",
		TransactionTime: "10:15",
		Items: []core.Item{
			{ItemName: "Teh Botol", Quantity: 2, UnitPrice: core.NewMoney(500), TotalPriceItem: core.NewMoney(1000)},
			{ItemName: "Roti", Quantity: 1, UnitPrice: core.NewMoney(1250), TotalPriceItem: core.NewMoney(1250)},
		},
		FinalTotal:       core.MoneyPtr(31695),
		TenderType:       core.StringPtr("cash"),
		CategorySpending: core.StringPtr("Groceries"),
	}, {
		ID:              "r2",
		TransactionDate: "2025-06-04",
		TransactionTime: "18:00",
		Items:           []core.Item{},
		FinalTotal:      core.MoneyPtr(5000),
		TenderType:      core.StringPtr("debit"),
	}}
}

func TestExportReceiptsXLSX(t *testing.T) {
	lister := &stubLister{recs: sample()}
	svc := NewService(lister, nil)
	window, err := core.NewDateRange("2025-06-01", "2025-06-30")
	require.NoError(t, err)

	data, err := svc.ExportReceiptsXLSX(context.Background(), "u1", &window)
	require.NoError(t, err)
	assert.Equal(t, &window, lister.window)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Receipts", "Items"}, f.GetSheetList())

	rows, err := f.GetRows("Receipts")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Receipt ID", rows[0][0])
	assert.Equal(t, []string{"r1", "2025-06-03", "10:15", "Indomaret", "groceries", "cash"}, rows[1][:6])
	assert.Equal(t, "316.95", rows[1][10])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "uncategorized", rows[2][4])

	items, err := f.GetRows("Items")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"r1", "Teh Botol", "2", "5", "10"}, items[1])
	assert.Equal(t, []string{"r1", "Roti", "1", "12.5", "12.5"}, items[2])
}

func TestExportReceiptsXLSX_Empty(t *testing.T) {
	data, err := NewService(&stubLister{}, nil).ExportReceiptsXLSX(context.Background(), "u1", nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Receipts")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportReceiptsXLSX_ListError(t *testing.T) {
	_, err := NewService(&stubLister{err: core.NotFoundf("user u1")}, nil).
		ExportReceiptsXLSX(context.Background(), "u1", nil)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
