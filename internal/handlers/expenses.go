package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
)

// blankRows is how many empty entry rows the index form offers.
const blankRows = 5

// IndexViewModel is the data passed to the entry form and ledger view.
type IndexViewModel struct {
	Page
	Rows       []int
	Year       int
	Months     []string
	Persons    []models.Person
	Categories []string
	Entries    []ledger.Entry
}

func monthNames() []string {
	names := make([]string, 0, 12)
	for m := time.January; m <= time.December; m++ {
		names = append(names, m.String())
	}
	return names
}

// Index renders the entry form above the account's ledger.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r)
	ctx := r.Context()

	entries, err := h.ledger.Ledger(ctx, account)
	if err != nil {
		h.log.InternalError("handlers: load ledger", err, "account_id", account.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	persons, err := h.store.ListPersons(ctx, account.ID)
	if err != nil {
		h.log.InternalError("handlers: list persons", err, "account_id", account.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	categories, err := h.ledger.Categories(ctx)
	if err != nil {
		h.log.InternalError("handlers: list categories", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "index.html", IndexViewModel{
		Page:       Page{Account: account, Flash: h.popFlash(w, r)},
		Rows:       make([]int, blankRows),
		Year:       time.Now().Year(),
		Months:     monthNames(),
		Persons:    persons,
		Categories: categories,
		Entries:    entries,
	})
}

// Submit records one batch of expense rows posted as parallel arrays and
// redirects back to the index with a flash describing the outcome.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.setFlash(w, flashError, "Invalid form submission")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	form := r.PostForm
	rows := ledger.RowsFromColumns(
		form["scope[]"],
		form["day[]"],
		form["month[]"],
		form["year[]"],
		form["amount[]"],
		form["category[]"],
		form["notes[]"],
	)

	res := h.ledger.Submit(r.Context(), AccountFromContext(r), rows)
	if res.Committed() {
		h.setFlash(w, flashSuccess, committedMessage(res))
	} else {
		h.setFlash(w, flashError, "Nothing was saved because the database could not be reached. Please try again.")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Only the first few rejections are spelled out so the flash cookie stays
// well under the browser limit.
const (
	maxListedRejections = 3
	maxReasonRunes      = 120
)

func committedMessage(res ledger.Result) string {
	var b strings.Builder
	if res.Saved == 1 {
		b.WriteString("Saved 1 expense.")
	} else {
		fmt.Fprintf(&b, "Saved %d expenses.", res.Saved)
	}
	if len(res.Rejected) == 0 {
		return b.String()
	}

	listed := res.Rejected[:min(len(res.Rejected), maxListedRejections)]
	reasons := make([]string, 0, len(listed))
	for _, rowErr := range listed {
		reasons = append(reasons, clipRunes(rowErr.Error(), maxReasonRunes))
	}
	if len(res.Rejected) == 1 {
		fmt.Fprintf(&b, " Skipped %s", reasons[0])
		return b.String()
	}
	fmt.Fprintf(&b, " Skipped %d rows: %s", len(res.Rejected), strings.Join(reasons, "; "))
	if more := len(res.Rejected) - len(listed); more > 0 {
		fmt.Fprintf(&b, "; and %d more", more)
	}
	b.WriteString(".")
	return b.String()
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
