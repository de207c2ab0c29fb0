package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"household-ledger/internal/models"
	"household-ledger/internal/money"

	"github.com/shopspring/decimal"
)

// CategoryTotal is the spending in one category over a month.
type CategoryTotal struct {
	Category   string
	Total      decimal.Decimal
	Display    string
	Count      int
	Percentage float64
}

// MonthSummary groups one month of an account's expenses by category.
type MonthSummary struct {
	Year       int
	Month      time.Month
	Total      decimal.Decimal
	Display    string
	Categories []CategoryTotal
	Prev       time.Time
	Next       time.Time
}

// Summarize totals the expenses dated in year/month by category, largest
// first. Amounts are formatted in currency.
func Summarize(expenses []models.Expense, year int, month time.Month, currency string) MonthSummary {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	sum := MonthSummary{
		Year:  year,
		Month: month,
		Prev:  first.AddDate(0, -1, 0),
		Next:  first.AddDate(0, 1, 0),
	}

	byCategory := make(map[string]*CategoryTotal)
	for _, e := range expenses {
		if e.Date.Year() != year || e.Date.Month() != month {
			continue
		}
		ct, ok := byCategory[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category}
			byCategory[e.Category] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
		sum.Total = sum.Total.Add(e.Amount)
	}

	for _, ct := range byCategory {
		ct.Display = money.Format(ct.Total, currency)
		if sum.Total.IsPositive() {
			ct.Percentage = ct.Total.Div(sum.Total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		sum.Categories = append(sum.Categories, *ct)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		a, b := sum.Categories[i], sum.Categories[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})
	sum.Display = money.Format(sum.Total, currency)
	return sum
}

// MonthlySummary loads the account's expenses and summarizes one month.
func (s *Service) MonthlySummary(ctx context.Context, account *models.Account, year int, month time.Month) (MonthSummary, error) {
	if account == nil || account.ID == 0 {
		return MonthSummary{}, ErrNoAccount
	}
	expenses, err := s.repo.ListExpenses(ctx, account.ID)
	if err != nil {
		return MonthSummary{}, fmt.Errorf("list expenses: %w", err)
	}
	return Summarize(expenses, year, month, account.Currency), nil
}
