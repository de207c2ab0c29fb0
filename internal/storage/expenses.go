package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"household-ledger/internal/ledger"
	"household-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Transaction runs fn with a Repository bound to a single transaction.
func (db *DB) Transaction(ctx context.Context, fn func(ledger.Repository) error) error {
	return db.withTx(ctx, func(tx *DB) error {
		return fn(tx)
	})
}

// Atomic groups account and person writes into one transaction.
func (db *DB) Atomic(ctx context.Context, fn func(Store) error) error {
	return db.withTx(ctx, func(tx *DB) error {
		return fn(tx)
	})
}

// CategoryNames returns every category in the catalog, alphabetically.
func (db *DB) CategoryNames(ctx context.Context) ([]string, error) {
	rows, err := db.q.QueryContext(ctx, "SELECT category_name FROM categories ORDER BY category_name")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// InsertCategories adds names to the catalog in one statement. Names that
// already exist are ignored.
func (db *DB) InsertCategories(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("(?),", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	return db.withTx(ctx, func(tx *DB) error {
		_, err := tx.q.ExecContext(ctx, "INSERT OR IGNORE INTO categories (category_name) VALUES "+placeholders, args...)
		return err
	})
}

// CreateExpense inserts a new expense and sets its ID and timestamps.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	now := time.Now().UTC()
	result, err := db.q.ExecContext(ctx, `
		INSERT INTO expenses (
			account_id, person_id, expense_scope, day, month, year, expense_date, day_of_week,
			amount, adjusted_amount, expense_category, additional_notes, currency,
			manual_category, suggested_category, confirmed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.PersonID, string(e.Scope), e.Day, e.Month, e.Year, e.Date.UTC(), e.DayOfWeek,
		e.Amount, e.AdjustedAmount, e.Category, e.Notes, e.Currency,
		e.ManualCategory, e.SuggestedCategory, e.Confirmed, now, now,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

// ListExpenses returns the account's expenses, newest expense date first.
func (db *DB) ListExpenses(ctx context.Context, accountID int64) ([]models.Expense, error) {
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, account_id, person_id, expense_scope, day, month, year, expense_date, day_of_week,
		       amount, adjusted_amount, expense_category, additional_notes, currency,
		       manual_category, suggested_category, confirmed, created_at, updated_at
		FROM expenses
		WHERE account_id = ?
		ORDER BY expense_date DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var (
			e                 models.Expense
			scope             string
			personID          sql.NullInt64
			adjusted          decimal.NullDecimal
			manual, suggested sql.NullString
			confirmed         sql.NullBool
		)
		err := rows.Scan(&e.ID, &e.AccountID, &personID, &scope, &e.Day, &e.Month, &e.Year, &e.Date, &e.DayOfWeek,
			&e.Amount, &adjusted, &e.Category, &e.Notes, &e.Currency,
			&manual, &suggested, &confirmed, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, err
		}
		e.Scope = models.Scope(scope)
		if personID.Valid {
			e.PersonID = &personID.Int64
		}
		if adjusted.Valid {
			e.AdjustedAmount = &adjusted.Decimal
		}
		if manual.Valid {
			e.ManualCategory = &manual.String
		}
		if suggested.Valid {
			e.SuggestedCategory = &suggested.String
		}
		if confirmed.Valid {
			e.Confirmed = &confirmed.Bool
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

