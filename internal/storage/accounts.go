package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"household-ledger/internal/models"
)

const accountColumns = "id, account_name, user_email, password_hash, display_name, currency, created_at, last_updated, last_login_at"

// CreateAccount inserts the account together with a default person named
// defaultPerson, atomically. It fills in the generated IDs.
func (db *DB) CreateAccount(ctx context.Context, a *models.Account, defaultPerson string) (*models.Person, error) {
	var person models.Person
	err := db.withTx(ctx, func(tx *DB) error {
		now := time.Now().UTC()
		result, err := tx.q.ExecContext(ctx,
			`INSERT INTO accounts (account_name, user_email, password_hash, display_name, currency, created_at, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.Name, a.Email, a.PasswordHash, a.DisplayName, a.Currency, now, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return models.ErrNameTaken
			}
			return err
		}
		if a.ID, err = result.LastInsertId(); err != nil {
			return err
		}
		a.CreatedAt, a.LastUpdated = now, now

		p, err := tx.CreatePerson(ctx, a.ID, defaultPerson)
		if err != nil {
			return err
		}
		person = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var (
		a         models.Account
		lastLogin sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Currency, &a.CreatedAt, &a.LastUpdated, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return &a, nil
}

// GetAccountByID retrieves an account by ID.
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(db.q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id))
}

// GetAccountByName retrieves an account by its login name or email.
func (db *DB) GetAccountByName(ctx context.Context, name string) (*models.Account, error) {
	return scanAccount(db.q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_name = ? OR user_email = ? ORDER BY account_name = ? DESC LIMIT 1",
		name, name, name,
	))
}

// UpdateProfile changes the display name and preferred currency.
func (db *DB) UpdateProfile(ctx context.Context, accountID int64, displayName, currency string) error {
	return db.updateAccount(ctx, accountID,
		"UPDATE accounts SET display_name = ?, currency = ?, last_updated = ? WHERE id = ?",
		displayName, currency, time.Now().UTC(), accountID,
	)
}

// UpdatePassword replaces the stored password hash.
func (db *DB) UpdatePassword(ctx context.Context, accountID int64, passwordHash string) error {
	return db.updateAccount(ctx, accountID,
		"UPDATE accounts SET password_hash = ?, last_updated = ? WHERE id = ?",
		passwordHash, time.Now().UTC(), accountID,
	)
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, accountID int64, at time.Time) error {
	return db.updateAccount(ctx, accountID,
		"UPDATE accounts SET last_login_at = ? WHERE id = ?",
		at.UTC(), accountID,
	)
}

func (db *DB) updateAccount(ctx context.Context, accountID int64, query string, args ...any) error {
	result, err := db.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", accountID, models.ErrNotFound)
	}
	return nil
}

// AccountCount returns the number of accounts in the database.
func (db *DB) AccountCount(ctx context.Context) (int, error) {
	var count int
	err := db.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

// CreatePerson adds a household member to the account.
func (db *DB) CreatePerson(ctx context.Context, accountID int64, name string) (*models.Person, error) {
	result, err := db.q.ExecContext(ctx, "INSERT INTO persons (account_id, person_name) VALUES (?, ?)", accountID, name)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Person{ID: id, AccountID: accountID, Name: name}, nil
}

// GetPerson returns the person only if it belongs to accountID.
func (db *DB) GetPerson(ctx context.Context, accountID, personID int64) (*models.Person, error) {
	var p models.Person
	err := db.q.QueryRowContext(ctx,
		"SELECT id, account_id, person_name FROM persons WHERE id = ? AND account_id = ?",
		personID, accountID,
	).Scan(&p.ID, &p.AccountID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPersonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersons returns the account's persons in creation order.
func (db *DB) ListPersons(ctx context.Context, accountID int64) ([]models.Person, error) {
	rows, err := db.q.QueryContext(ctx,
		"SELECT id, account_id, person_name FROM persons WHERE account_id = ? ORDER BY id",
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name); err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// RenamePerson renames a person owned by accountID.
func (db *DB) RenamePerson(ctx context.Context, accountID, personID int64, name string) error {
	result, err := db.q.ExecContext(ctx,
		"UPDATE persons SET person_name = ? WHERE id = ? AND account_id = ?",
		name, personID, accountID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrPersonNotFound
	}
	return nil
}
