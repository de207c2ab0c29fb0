package storage

import (
	"context"
	"time"

	"household-ledger/internal/catalog"
	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
)

// Store is everything the server needs from a storage backend. *DB is the
// SQLite implementation; the postgres package provides the other.
type Store interface {
	ledger.Repository
	catalog.Store

	CreateAccount(ctx context.Context, a *models.Account, defaultPerson string) (*models.Person, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	GetAccountByName(ctx context.Context, name string) (*models.Account, error)
	UpdateProfile(ctx context.Context, accountID int64, displayName, currency string) error
	UpdatePassword(ctx context.Context, accountID int64, passwordHash string) error
	TouchLastLogin(ctx context.Context, accountID int64, at time.Time) error
	AccountCount(ctx context.Context) (int, error)

	CreatePerson(ctx context.Context, accountID int64, name string) (*models.Person, error)
	RenamePerson(ctx context.Context, accountID, personID int64, name string) error

	CreateSession(ctx context.Context, token string, accountID int64, expiresAt time.Time) error
	ValidateSession(ctx context.Context, token string) (*models.Account, error)
	ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)

	// Atomic runs fn against a Store bound to one transaction. The
	// transaction commits only when fn returns nil.
	Atomic(ctx context.Context, fn func(Store) error) error

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*DB)(nil)
