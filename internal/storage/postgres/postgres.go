// Package postgres is the gorm-backed storage used when DB_DRIVER=postgres.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"household-ledger/internal/config"
	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
	"household-ledger/internal/storage"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to Postgres, sizes the pool and migrates the schema.
func Open(cfg config.DBConfig) (*Store, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = defaultConnMaxLifetime
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := gormDB.AutoMigrate(
		&models.Account{},
		&models.Person{},
		&models.Category{},
		&models.Expense{},
		&models.Session{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: gormDB}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Transaction(ctx context.Context, fn func(ledger.Repository) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	return classify(err)
}

func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	return classify(err)
}

// Postgres error codes worth one more attempt.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// classify tags lost connections, failed connects and serialization
// conflicts with models.ErrTransient.
func classify(err error) error {
	if err == nil || errors.Is(err, models.ErrTransient) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", models.ErrTransient, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func (s *Store) CategoryNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&models.Category{}).
		Order("category_name").
		Pluck("category_name", &names).Error
	if err != nil {
		return nil, classify(err)
	}
	return names, nil
}

func (s *Store) InsertCategories(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]models.Category, 0, len(names))
	for _, name := range names {
		rows = append(rows, models.Category{Name: name})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "category_name"}}, DoNothing: true}).
		Create(&rows).Error
}

func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	expense.Date = expense.Date.UTC()
	return s.db.WithContext(ctx).Create(expense).Error
}

func (s *Store) ListExpenses(ctx context.Context, accountID int64) ([]models.Expense, error) {
	var items []models.Expense
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("expense_date desc, id desc").
		Find(&items).Error
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *models.Account, defaultPerson string) (*models.Person, error) {
	person := models.Person{Name: defaultPerson}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return models.ErrNameTaken
			}
			return err
		}
		person.AccountID = a.ID
		return tx.Create(&person).Error
	})
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAccountByName(ctx context.Context, name string) (*models.Account, error) {
	var a models.Account
	err := s.db.WithContext(ctx).
		Where("account_name = ? OR user_email = ?", name, name).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "account_name = ? DESC", Vars: []any{name}}}).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) UpdateProfile(ctx context.Context, accountID int64, displayName, currency string) error {
	return s.updateAccount(ctx, accountID, map[string]any{
		"display_name": displayName,
		"currency":     currency,
		"last_updated": time.Now().UTC(),
	})
}

func (s *Store) UpdatePassword(ctx context.Context, accountID int64, passwordHash string) error {
	return s.updateAccount(ctx, accountID, map[string]any{
		"password_hash": passwordHash,
		"last_updated":  time.Now().UTC(),
	})
}

func (s *Store) TouchLastLogin(ctx context.Context, accountID int64, at time.Time) error {
	return s.updateAccount(ctx, accountID, map[string]any{"last_login_at": at.UTC()})
}

func (s *Store) updateAccount(ctx context.Context, accountID int64, values map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).UpdateColumns(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("account %d: %w", accountID, models.ErrNotFound)
	}
	return nil
}

func (s *Store) AccountCount(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error
	return int(count), err
}

func (s *Store) CreatePerson(ctx context.Context, accountID int64, name string) (*models.Person, error) {
	p := models.Person{AccountID: accountID, Name: name}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPerson(ctx context.Context, accountID, personID int64) (*models.Person, error) {
	var p models.Person
	err := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", personID, accountID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPersonNotFound
		}
		return nil, classify(err)
	}
	return &p, nil
}

func (s *Store) ListPersons(ctx context.Context, accountID int64) ([]models.Person, error) {
	var persons []models.Person
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&persons).Error
	if err != nil {
		return nil, classify(err)
	}
	return persons, nil
}

func (s *Store) RenamePerson(ctx context.Context, accountID, personID int64, name string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Person{}).
		Where("id = ? AND account_id = ?", personID, accountID).
		Update("person_name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrPersonNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, token string, accountID int64, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Create(&models.Session{
		Token:        token,
		AccountID:    accountID,
		ExpiresAt:    expiresAt.UTC(),
		LastActivity: time.Now().UTC(),
	}).Error
}

func (s *Store) ValidateSession(ctx context.Context, token string) (*models.Account, error) {
	info, err := s.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.Account, nil
}

func (s *Store) ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, time.Now().UTC()).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	account, err := s.GetAccountByID(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	return &models.SessionInfo{
		Account:      account,
		LastActivity: session.LastActivity,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (s *Store) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("token = ?", token).
		Updates(map[string]any{
			"last_activity": time.Now().UTC(),
			"expires_at":    newExpiresAt.UTC(),
		}).Error
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Delete(&models.Session{}, "token = ?", token).Error
}

func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.Session{}, "expires_at <= ?", time.Now().UTC())
	return result.RowsAffected, result.Error
}
