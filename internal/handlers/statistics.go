package handlers

import (
	"net/http"
	"strconv"
	"time"

	"household-ledger/internal/ledger"
)

// StatsViewModel is the data passed to the monthly summary template.
type StatsViewModel struct {
	Page
	Summary        ledger.MonthSummary
	IsCurrentMonth bool
}

// Statistics renders per-category totals for one month.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	// Get year and month from query params, default to current month
	now := time.Now()
	year := now.Year()
	month := now.Month()

	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil && y > 0 {
		year = y
	}
	if m, err := strconv.Atoi(r.URL.Query().Get("month")); err == nil && m >= 1 && m <= 12 {
		month = time.Month(m)
	}

	account := AccountFromContext(r)
	summary, err := h.ledger.MonthlySummary(r.Context(), account, year, month)
	if err != nil {
		h.log.InternalError("handlers: monthly summary", err, "account_id", account.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "summary.html", StatsViewModel{
		Page:           Page{Account: account},
		Summary:        summary,
		IsCurrentMonth: year == now.Year() && month == now.Month(),
	})
}
