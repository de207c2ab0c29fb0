package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"household-ledger/internal/models"
)

// MaxNotesLength bounds AdditionalNotes, in characters.
const MaxNotesLength = 255

var (
	ErrScopeRequired = errors.New("scope is required")
	ErrInvalidScope  = errors.New("scope must be Joint or a person id")
	ErrInvalidDate   = errors.New("invalid date")
	ErrNotesTooLong  = fmt.Errorf("notes exceed %d characters", MaxNotesLength)
)

// dateLayout reads the Year-MonthName-Day triple, e.g. "2024-February-29".
const dateLayout = "2006-January-2"

// RawRow is one submitted expense line exactly as typed by the user.
type RawRow struct {
	Scope    string
	Day      string
	Month    string
	Year     string
	Amount   string
	Category string
	Notes    string
}

// Blank reports whether every field of the row is empty.
func (r RawRow) Blank() bool {
	for _, v := range []string{r.Scope, r.Day, r.Month, r.Year, r.Amount, r.Category, r.Notes} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ScopeChoice is the decoded scope of a row: Joint, or Individual with the
// person the expense is attributed to.
type ScopeChoice struct {
	Kind     models.Scope
	PersonID int64
}

func Joint() ScopeChoice { return ScopeChoice{Kind: models.ScopeJoint} }

func Individual(personID int64) ScopeChoice {
	return ScopeChoice{Kind: models.ScopeIndividual, PersonID: personID}
}

// ParseScope decodes the scope field: the literal "Joint" or a person id.
func ParseScope(raw string) (ScopeChoice, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ScopeChoice{}, ErrScopeRequired
	}
	if raw == string(models.ScopeJoint) {
		return Joint(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return ScopeChoice{}, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
	return Individual(id), nil
}

// ParseDate builds a calendar date from a day number, an English month name
// and a four-digit year. Days past the end of the month are rejected.
func ParseDate(day, month, year string) (time.Time, error) {
	value := strings.TrimSpace(year) + "-" + strings.TrimSpace(month) + "-" + strings.TrimSpace(day)
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, value, err)
	}
	return t, nil
}

// RowsFromColumns rebuilds rows from per-field columns, as sent by an HTML
// form with repeated inputs. Shorter columns are padded with empty cells.
func RowsFromColumns(scope, day, month, year, amount, category, notes []string) []RawRow {
	columns := [][]string{scope, day, month, year, amount, category, notes}
	n := 0
	for _, c := range columns {
		n = max(n, len(c))
	}
	cell := func(c []string, i int) string {
		if i < len(c) {
			return c[i]
		}
		return ""
	}

	rows := make([]RawRow, n)
	for i := range rows {
		rows[i] = RawRow{
			Scope:    cell(scope, i),
			Day:      cell(day, i),
			Month:    cell(month, i),
			Year:     cell(year, i),
			Amount:   cell(amount, i),
			Category: cell(category, i),
			Notes:    cell(notes, i),
		}
	}
	return rows
}
