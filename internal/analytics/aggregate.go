// Package analytics derives dashboard metrics from a user's receipts.
package analytics

import (
	"sort"
	"time"

	"struk/internal/core"
)

// NotApplicable is reported as the overspend percentage when the baseline is zero.
const NotApplicable = "N/A"

type (
	// DailyPoint is one day of the current month: the evenly spread income
	// and the receipts total for that day.
	DailyPoint struct {
		Day     int        `json:"day"`
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
	}

	// Overspend reports a category whose monthly total exceeds a baseline.
	Overspend struct {
		Category   string     `json:"category"`
		Amount     core.Money `json:"amount"`
		ExceededBy core.Money `json:"exceededBy"`
		Percentage string     `json:"percentage"`
	}

	// PieSlice is a category's share of the month's spending.
	PieSlice struct {
		Category   string       `json:"category"`
		Amount     core.Money   `json:"amount"`
		Percentage core.Percent `json:"percentage"`
	}

	// Result is the full dashboard aggregation.
	Result struct {
		Income             core.Money            `json:"income"`
		DaysInMonth        int                   `json:"daysInMonth"`
		DailySeries        []DailyPoint          `json:"dailySeries"`
		TotalTodaySpending core.Money            `json:"totalTodaySpending"`
		TotalMonthSpending core.Money            `json:"totalMonthSpending"`
		TotalYearSpending  core.Money            `json:"totalYearSpending"`
		CategoryTotals     map[string]core.Money `json:"categoryTotals"`
		OverspentMonthly   []Overspend           `json:"overspentMonthly"`
		OverspentDaily     []Overspend           `json:"overspentDaily"`
		PieBreakdown       []PieSlice            `json:"pieBreakdown"`
		MonthReceipts      []core.Receipt        `json:"monthReceipts"`
	}
)

// DaysIn returns the number of days in the month of t.
func DaysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthReceipts returns the receipts dated in the calendar month of now.
// Receipts with an unparseable date are skipped.
func MonthReceipts(receipts []core.Receipt, now time.Time) []core.Receipt {
	out := make([]core.Receipt, 0)
	for _, r := range receipts {
		d, ok := r.Date()
		if ok && d.Year() == now.Year() && d.Month() == now.Month() {
			out = append(out, r)
		}
	}
	return out
}

// Compute aggregates receipts against the monthly income as of now.
// Calendar buckets use the date of now in its own location.
func Compute(receipts []core.Receipt, income core.Money, now time.Time) Result {
	year, month, today := now.Date()
	days := DaysIn(now)

	res := Result{
		Income:           income,
		DaysInMonth:      days,
		DailySeries:      make([]DailyPoint, days),
		CategoryTotals:   make(map[string]core.Money),
		OverspentMonthly: []Overspend{},
		OverspentDaily:   []Overspend{},
		PieBreakdown:     []PieSlice{},
		MonthReceipts:    []core.Receipt{},
	}

	dailyIncome := core.NewMoney(core.MulDivRound(income.Cents, 1, int64(days)))
	for i := range res.DailySeries {
		res.DailySeries[i] = DailyPoint{Day: i + 1, Income: dailyIncome}
	}

	for _, r := range receipts {
		d, ok := r.Date()
		if !ok || d.Year() != year {
			continue
		}
		total := r.Total()
		res.TotalYearSpending = res.TotalYearSpending.Add(total)
		if d.Month() != month {
			continue
		}
		res.TotalMonthSpending = res.TotalMonthSpending.Add(total)
		res.MonthReceipts = append(res.MonthReceipts, r.Clone())
		res.DailySeries[d.Day()-1].Expense = res.DailySeries[d.Day()-1].Expense.Add(total)
		if d.Day() == today {
			res.TotalTodaySpending = res.TotalTodaySpending.Add(total)
		}
		cat := r.Category()
		res.CategoryTotals[cat] = res.CategoryTotals[cat].Add(total)
	}

	for _, cat := range sortedCategories(res.CategoryTotals) {
		amount := res.CategoryTotals[cat]
		if o, over := overMonthly(cat, amount, income); over {
			res.OverspentMonthly = append(res.OverspentMonthly, o)
		}
		if o, over := overDaily(cat, amount, income, int64(days)); over {
			res.OverspentDaily = append(res.OverspentDaily, o)
		}
		var share core.Percent
		if !res.TotalMonthSpending.IsZero() {
			share = core.Ratio(amount.Cents, res.TotalMonthSpending.Cents)
		}
		res.PieBreakdown = append(res.PieBreakdown, PieSlice{Category: cat, Amount: amount, Percentage: share})
	}
	sort.SliceStable(res.PieBreakdown, func(i, j int) bool {
		return res.PieBreakdown[i].Amount.Cents > res.PieBreakdown[j].Amount.Cents
	})
	return res
}

func overMonthly(cat string, amount, income core.Money) (Overspend, bool) {
	if amount.Cents <= income.Cents {
		return Overspend{}, false
	}
	pct := NotApplicable
	if income.Cents > 0 {
		pct = core.Ratio(amount.Cents, income.Cents).String()
	}
	return Overspend{
		Category:   cat,
		Amount:     amount,
		ExceededBy: amount.Sub(income),
		Percentage: pct,
	}, true
}

// overDaily compares against income/days exactly: amount*days > income.
func overDaily(cat string, amount, income core.Money, days int64) (Overspend, bool) {
	if amount.Cents*days <= income.Cents {
		return Overspend{}, false
	}
	// exceededBy = (amount*days - income) / days, rounded to the minor unit
	exceeded := core.MulDivRound(amount.Cents*days-income.Cents, 1, days)
	pct := NotApplicable
	if income.Cents > 0 {
		pct = core.Percent(core.MulDivRound(amount.Cents, days*10000, income.Cents)).String()
	}
	return Overspend{
		Category:   cat,
		Amount:     amount,
		ExceededBy: core.NewMoney(exceeded),
		Percentage: pct,
	}, true
}

func sortedCategories(totals map[string]core.Money) []string {
	cats := make([]string, 0, len(totals))
	for c := range totals {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}
