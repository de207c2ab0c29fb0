// Package ledger turns submitted expense rows into ledger entries and reads
// an account's ledger back for display.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"household-ledger/internal/models"
	"household-ledger/internal/money"
	"household-ledger/pkg/logger"
)

var ErrNoAccount = errors.New("no authenticated account")

// Repository is the storage the workflow runs against. Transaction hands fn a
// Repository bound to one transaction; it commits when fn returns nil.
type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	GetPerson(ctx context.Context, accountID, personID int64) (*models.Person, error)
	ListPersons(ctx context.Context, accountID int64) ([]models.Person, error)
	CategoryNames(ctx context.Context) ([]string, error)
	CreateExpense(ctx context.Context, expense *models.Expense) error
	ListExpenses(ctx context.Context, accountID int64) ([]models.Expense, error)
}

// RowError explains why a row was left out of a submission. Row is 1-based.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e RowError) Unwrap() error { return e.Err }

type Outcome int

const (
	// OutcomeCommitted means the transaction committed; Saved rows were written.
	OutcomeCommitted Outcome = iota
	// OutcomeFailed means nothing was written; Reason holds the storage error.
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeCommitted {
		return "committed"
	}
	return "failed"
}

// Result is the outcome of one submission.
type Result struct {
	Outcome  Outcome
	Saved    int
	Rejected []RowError
	Reason   error
}

func (r Result) Committed() bool { return r.Outcome == OutcomeCommitted }

type Service struct {
	repo Repository
	log  logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

type unknownCategory struct {
	row  int
	name string
}

// Submit validates rows in order and writes the valid ones for account in a
// single transaction. Blank rows are skipped silently, invalid rows are
// reported in Result.Rejected, and a storage failure discards the whole
// batch. A transient storage failure is retried once.
func (s *Service) Submit(ctx context.Context, account *models.Account, rows []RawRow) Result {
	if account == nil || account.ID == 0 {
		return Result{Outcome: OutcomeFailed, Reason: ErrNoAccount}
	}
	log := s.log.With("account_id", account.ID)

	res, unknown, err := s.submitOnce(ctx, account, rows)
	if errors.Is(err, models.ErrTransient) {
		log.Warn("ledger: transient storage error, retrying", "err", err)
		res, unknown, err = s.submitOnce(ctx, account, rows)
	}

	for _, rowErr := range res.Rejected {
		log.BusinessError("ledger: row rejected", rowErr.Err, "row", rowErr.Row)
	}

	if err != nil {
		log.InternalError("ledger: submission failed", err, "rows", len(rows))
		return Result{Outcome: OutcomeFailed, Rejected: res.Rejected, Reason: err}
	}

	for _, u := range unknown {
		log.Warn("ledger: category not in catalog", "row", u.row, "category", u.name)
	}
	log.Info("ledger: submission committed", "saved", res.Saved, "rejected", len(res.Rejected))
	return res
}

func (s *Service) submitOnce(ctx context.Context, account *models.Account, rows []RawRow) (Result, []unknownCategory, error) {
	var (
		res     Result
		unknown []unknownCategory
	)
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		res, unknown = Result{Outcome: OutcomeCommitted}, nil

		names, err := tx.CategoryNames(ctx)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		known := make(map[string]struct{}, len(names))
		for _, name := range names {
			known[name] = struct{}{}
		}

		for i, raw := range rows {
			if raw.Blank() {
				continue
			}
			expense, err := buildExpense(ctx, tx, account, raw)
			if err != nil {
				var rowErr rowError
				if errors.As(err, &rowErr) {
					res.Rejected = append(res.Rejected, RowError{Row: i + 1, Err: rowErr.err})
					continue
				}
				return err
			}
			if _, ok := known[expense.Category]; !ok {
				unknown = append(unknown, unknownCategory{row: i + 1, name: expense.Category})
			}
			if err := tx.CreateExpense(ctx, expense); err != nil {
				return fmt.Errorf("insert row %d: %w", i+1, err)
			}
			res.Saved++
		}
		return nil
	})
	return res, unknown, err
}

// rowError separates problems with one row from storage failures that must
// abort the transaction.
type rowError struct{ err error }

func (e rowError) Error() string { return e.err.Error() }

func buildExpense(ctx context.Context, tx Repository, account *models.Account, raw RawRow) (*models.Expense, error) {
	scope, err := ParseScope(raw.Scope)
	if err != nil {
		return nil, rowError{err}
	}

	expense := &models.Expense{
		AccountID: account.ID,
		Scope:     scope.Kind,
		Category:  strings.TrimSpace(raw.Category),
		Notes:     strings.TrimSpace(raw.Notes),
		Currency:  account.Currency,
	}

	if scope.Kind == models.ScopeIndividual {
		person, err := tx.GetPerson(ctx, account.ID, scope.PersonID)
		if errors.Is(err, models.ErrPersonNotFound) {
			return nil, rowError{fmt.Errorf("%w: %d", models.ErrPersonNotFound, scope.PersonID)}
		}
		if err != nil {
			return nil, fmt.Errorf("get person %d: %w", scope.PersonID, err)
		}
		expense.PersonID = &person.ID
	}

	date, err := ParseDate(raw.Day, raw.Month, raw.Year)
	if err != nil {
		return nil, rowError{err}
	}
	expense.Date = date
	expense.Day = date.Day()
	expense.Month = date.Month().String()
	expense.Year = date.Year()
	expense.DayOfWeek = date.Weekday().String()

	amount, err := money.ParseAmount(raw.Amount)
	if err != nil {
		return nil, rowError{fmt.Errorf("%w: %q", err, raw.Amount)}
	}
	expense.Amount = amount

	if utf8.RuneCountInString(expense.Notes) > MaxNotesLength {
		return nil, rowError{ErrNotesTooLong}
	}

	return expense, nil
}

// Entry is one ledger line prepared for display.
type Entry struct {
	models.Expense
	DisplayAmount string
	PersonName    string
}

// Ledger returns the account's expenses, newest first, with amounts
// formatted in the account's currency.
func (s *Service) Ledger(ctx context.Context, account *models.Account) ([]Entry, error) {
	if account == nil || account.ID == 0 {
		return nil, ErrNoAccount
	}

	expenses, err := s.repo.ListExpenses(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	persons, err := s.repo.ListPersons(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	names := make(map[int64]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}

	entries := make([]Entry, 0, len(expenses))
	for _, e := range expenses {
		entry := Entry{
			Expense:       e,
			DisplayAmount: money.Format(e.Amount, account.Currency),
			PersonName:    string(models.ScopeJoint),
		}
		if e.PersonID != nil {
			entry.PersonName = names[*e.PersonID]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Categories returns the catalog names for the entry form.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.CategoryNames(ctx)
}
