package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersonNotFound is returned when a person does not exist or belongs to another account.
	ErrPersonNotFound = errors.New("person not found")
	// ErrNameTaken is returned when an account name or email is already registered.
	ErrNameTaken = errors.New("name or email already taken")
	// ErrTransient marks storage failures worth one retry (lost connection, busy database).
	ErrTransient = errors.New("transient storage error")
)

// Scope tags whether an expense belongs to the household or to one person.
type Scope string

const (
	ScopeJoint      Scope = "Joint"
	ScopeIndividual Scope = "Individual"
)

// Account is a registered user or household.
type Account struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	Name         string     `json:"name" gorm:"column:account_name;size:255;not null;uniqueIndex"`
	Email        string     `json:"email" gorm:"column:user_email;size:255;not null;uniqueIndex"`
	PasswordHash string     `json:"-" gorm:"column:password_hash;size:255;not null"`
	DisplayName  string     `json:"display_name" gorm:"size:255;not null"`
	Currency     string     `json:"currency" gorm:"size:3;not null"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	LastUpdated  time.Time  `json:"last_updated" gorm:"autoUpdateTime"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Person is a household member scoped to exactly one account.
type Person struct {
	ID        int64  `json:"id" gorm:"primaryKey"`
	AccountID int64  `json:"account_id" gorm:"index;not null"`
	Name      string `json:"name" gorm:"column:person_name;size:255;not null"`
}

// TableName keeps gorm from inflecting the table to "people".
func (Person) TableName() string { return "persons" }

// Category is one entry of the expense category catalog.
type Category struct {
	ID   int64  `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"column:category_name;size:255;not null;uniqueIndex"`
}

// Expense is one ledger entry.
type Expense struct {
	ID                int64            `json:"id" gorm:"primaryKey"`
	AccountID         int64            `json:"account_id" gorm:"index;not null"`
	PersonID          *int64           `json:"person_id,omitempty" gorm:"index"`
	Scope             Scope            `json:"scope" gorm:"column:expense_scope;size:16;not null"`
	Day               int              `json:"day" gorm:"not null"`
	Month             string           `json:"month" gorm:"size:50;not null"`
	Year              int              `json:"year" gorm:"not null"`
	Date              time.Time        `json:"date" gorm:"column:expense_date;type:date;not null;index"`
	DayOfWeek         string           `json:"day_of_week" gorm:"size:16"`
	Amount            decimal.Decimal  `json:"amount" gorm:"type:numeric(12,2);not null"`
	AdjustedAmount    *decimal.Decimal `json:"adjusted_amount,omitempty" gorm:"type:numeric(12,2)"`
	Category          string           `json:"category" gorm:"column:expense_category;size:255"`
	Notes             string           `json:"notes" gorm:"column:additional_notes;size:255"`
	Currency          string           `json:"currency" gorm:"size:3;not null"`
	ManualCategory    *string          `json:"manual_category,omitempty" gorm:"size:255"`
	SuggestedCategory *string          `json:"suggested_category,omitempty" gorm:"size:255"`
	Confirmed         *bool            `json:"confirmed,omitempty"`
	CreatedAt         time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// Session represents a logged-in browser session.
type Session struct {
	Token        string    `json:"token" gorm:"primaryKey;size:64"`
	AccountID    int64     `json:"account_id" gorm:"index;not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	LastActivity time.Time `json:"last_activity" gorm:"not null"`
}

// SessionInfo pairs a valid session with the account that owns it.
type SessionInfo struct {
	Account      *Account
	LastActivity time.Time
	ExpiresAt    time.Time
}
