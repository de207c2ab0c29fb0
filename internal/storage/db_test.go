package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"household-ledger/internal/auth"
	"household-ledger/internal/catalog"
	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
	"household-ledger/internal/money"
	"household-ledger/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { db.Close() })
	return db
}

// DBTestSuite covers accounts, persons, categories and expenses.
type DBTestSuite struct {
	suite.Suite
	ctx     context.Context
	db      *DB
	account *models.Account
	person  *models.Person
}

func (suite *DBTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.db = newTestDB(suite.T())

	hash, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err)

	suite.account = &models.Account{
		Name:         "smiths",
		Email:        "smiths@example.com",
		PasswordHash: hash,
		DisplayName:  "The Smiths",
		Currency:     "USD",
	}
	suite.person, err = suite.db.CreateAccount(suite.ctx, suite.account, "Alice")
	require.NoError(suite.T(), err)
}

func (suite *DBTestSuite) expense(scope models.Scope, personID *int64, date time.Time, amount string) *models.Expense {
	return &models.Expense{
		AccountID: suite.account.ID,
		PersonID:  personID,
		Scope:     scope,
		Day:       date.Day(),
		Month:     date.Month().String(),
		Year:      date.Year(),
		Date:      date,
		DayOfWeek: date.Weekday().String(),
		Amount:    decimal.RequireFromString(amount),
		Category:  "Groceries",
		Currency:  "USD",
	}
}

func (suite *DBTestSuite) TestCreateAccountAddsDefaultPerson() {
	assert.NotZero(suite.T(), suite.account.ID)
	assert.Equal(suite.T(), suite.account.ID, suite.person.AccountID)

	persons, err := suite.db.ListPersons(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), persons, 1)
	assert.Equal(suite.T(), "Alice", persons[0].Name)
}

func (suite *DBTestSuite) TestCreateAccountDuplicateName() {
	dup := &models.Account{Name: "smiths", Email: "other@example.com", PasswordHash: "x", DisplayName: "x", Currency: "USD"}
	_, err := suite.db.CreateAccount(suite.ctx, dup, "Bob")
	assert.ErrorIs(suite.T(), err, models.ErrNameTaken)

	count, err := suite.db.AccountCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *DBTestSuite) TestGetAccountByNameOrEmail() {
	byName, err := suite.db.GetAccountByName(suite.ctx, "smiths")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.account.ID, byName.ID)

	byEmail, err := suite.db.GetAccountByName(suite.ctx, "smiths@example.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.account.ID, byEmail.ID)

	_, err = suite.db.GetAccountByName(suite.ctx, "nobody")
	assert.ErrorIs(suite.T(), err, models.ErrNotFound)
}

func (suite *DBTestSuite) TestUpdateProfileAndLogin() {
	require.NoError(suite.T(), suite.db.UpdateProfile(suite.ctx, suite.account.ID, "Smith Family", "EUR"))
	now := time.Now()
	require.NoError(suite.T(), suite.db.TouchLastLogin(suite.ctx, suite.account.ID, now))

	got, err := suite.db.GetAccountByID(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Smith Family", got.DisplayName)
	assert.Equal(suite.T(), "EUR", got.Currency)
	require.NotNil(suite.T(), got.LastLoginAt)
	assert.WithinDuration(suite.T(), now, *got.LastLoginAt, time.Second)

	err = suite.db.UpdateProfile(suite.ctx, 9999, "x", "USD")
	assert.ErrorIs(suite.T(), err, models.ErrNotFound)
}

func (suite *DBTestSuite) TestUpdatePassword() {
	hash, err := auth.HashPassword("newpass")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.db.UpdatePassword(suite.ctx, suite.account.ID, hash))

	got, err := suite.db.GetAccountByID(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), auth.CheckPassword("newpass", got.PasswordHash))
}

func (suite *DBTestSuite) TestPersonsAreScopedToAccount() {
	other := &models.Account{Name: "joneses", Email: "j@example.com", PasswordHash: "x", DisplayName: "J", Currency: "EUR"}
	stranger, err := suite.db.CreateAccount(suite.ctx, other, "Mallory")
	require.NoError(suite.T(), err)

	_, err = suite.db.GetPerson(suite.ctx, suite.account.ID, stranger.ID)
	assert.ErrorIs(suite.T(), err, models.ErrPersonNotFound)

	err = suite.db.RenamePerson(suite.ctx, suite.account.ID, stranger.ID, "Eve")
	assert.ErrorIs(suite.T(), err, models.ErrPersonNotFound)

	bob, err := suite.db.CreatePerson(suite.ctx, suite.account.ID, "Bob")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.db.RenamePerson(suite.ctx, suite.account.ID, bob.ID, "Robert"))

	got, err := suite.db.GetPerson(suite.ctx, suite.account.ID, bob.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Robert", got.Name)
}

func (suite *DBTestSuite) TestCreateAndListExpenses() {
	march := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	joint := suite.expense(models.ScopeJoint, nil, march, "12.50")
	require.NoError(suite.T(), suite.db.CreateExpense(suite.ctx, joint))
	assert.NotZero(suite.T(), joint.ID)

	personal := suite.expense(models.ScopeIndividual, &suite.person.ID, april, "1234.56")
	personal.Notes = "train pass"
	require.NoError(suite.T(), suite.db.CreateExpense(suite.ctx, personal))

	expenses, err := suite.db.ListExpenses(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expenses, 2)

	// Newest expense date first.
	assert.Equal(suite.T(), personal.ID, expenses[0].ID)
	require.NotNil(suite.T(), expenses[0].PersonID)
	assert.Equal(suite.T(), suite.person.ID, *expenses[0].PersonID)
	assert.Equal(suite.T(), "train pass", expenses[0].Notes)
	assert.True(suite.T(), decimal.RequireFromString("1234.56").Equal(expenses[0].Amount))
	assert.Equal(suite.T(), "April", expenses[0].Month)
	assert.True(suite.T(), april.Equal(expenses[0].Date))

	assert.Equal(suite.T(), models.ScopeJoint, expenses[1].Scope)
	assert.Nil(suite.T(), expenses[1].PersonID)
	assert.Nil(suite.T(), expenses[1].AdjustedAmount)
	assert.Nil(suite.T(), expenses[1].Confirmed)
}

func (suite *DBTestSuite) TestScopeMustMatchPerson() {
	date := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	err := suite.db.CreateExpense(suite.ctx, suite.expense(models.ScopeJoint, &suite.person.ID, date, "1"))
	assert.Error(suite.T(), err)

	err = suite.db.CreateExpense(suite.ctx, suite.expense(models.ScopeIndividual, nil, date, "1"))
	assert.Error(suite.T(), err)
}

func (suite *DBTestSuite) TestTransactionRollsBack() {
	date := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := suite.db.Transaction(suite.ctx, func(tx ledger.Repository) error {
		if err := tx.CreateExpense(suite.ctx, suite.expense(models.ScopeJoint, nil, date, "5")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(suite.T(), err, boom)

	expenses, err := suite.db.ListExpenses(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), expenses)
}

func (suite *DBTestSuite) TestCatalogSyncIsIdempotent() {
	seed := []string{"Groceries", "Transport", "Housing"}

	inserted, err := catalog.Sync(suite.ctx, suite.db, seed)
	require.NoError(suite.T(), err)
	assert.ElementsMatch(suite.T(), seed, inserted)

	inserted, err = catalog.Sync(suite.ctx, suite.db, seed)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), inserted)

	names, err := suite.db.CategoryNames(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Groceries", "Housing", "Transport"}, names)
}

func (suite *DBTestSuite) TestInsertCategoriesIgnoresExisting() {
	require.NoError(suite.T(), suite.db.InsertCategories(suite.ctx, []string{"Travel"}))
	require.NoError(suite.T(), suite.db.InsertCategories(suite.ctx, []string{"Travel", "Gifts"}))
	require.NoError(suite.T(), suite.db.InsertCategories(suite.ctx, nil))

	names, err := suite.db.CategoryNames(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Gifts", "Travel"}, names)
}

func (suite *DBTestSuite) TestSubmitWorkflow() {
	_, err := catalog.Sync(suite.ctx, suite.db, catalog.DefaultSeed)
	require.NoError(suite.T(), err)

	svc := ledger.NewService(suite.db, logger.Nop())
	rows := ledger.RowsFromColumns(
		[]string{"Joint", "Joint", strconv.FormatInt(suite.person.ID, 10)},
		[]string{"3", "31", "4"},
		[]string{"March", "February", "March"},
		[]string{"2024", "2024", "2024"},
		[]string{"12.50", "99", "1,234.56"},
		[]string{"Groceries", "Groceries", "Transport"},
		[]string{"market", "", "train pass"},
	)

	res := svc.Submit(suite.ctx, suite.account, rows)
	require.True(suite.T(), res.Committed())
	assert.Equal(suite.T(), 2, res.Saved)
	require.Len(suite.T(), res.Rejected, 1)
	assert.Equal(suite.T(), 2, res.Rejected[0].Row)

	entries, err := svc.Ledger(suite.ctx, suite.account)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 2)
	assert.Equal(suite.T(), "$1,234.56", entries[0].DisplayAmount)
	assert.Equal(suite.T(), "Alice", entries[0].PersonName)
	assert.Equal(suite.T(), "$12.50", entries[1].DisplayAmount)
	assert.Equal(suite.T(), "Joint", entries[1].PersonName)
}

func (suite *DBTestSuite) TestAmountsRoundTripExactly() {
	date := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(suite.T(), suite.db.CreateExpense(suite.ctx, suite.expense(models.ScopeJoint, nil, date, "9999999999.99")))
	require.NoError(suite.T(), suite.db.CreateExpense(suite.ctx, suite.expense(models.ScopeJoint, nil, date, "0.10")))

	expenses, err := suite.db.ListExpenses(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expenses, 2)
	assert.Equal(suite.T(), "0.1", expenses[0].Amount.String())
	assert.Equal(suite.T(), "9999999999.99", expenses[1].Amount.String())
}

func (suite *DBTestSuite) TestSubmitRejectsUnboundedAmounts() {
	svc := ledger.NewService(suite.db, logger.Nop())
	rows := ledger.RowsFromColumns(
		[]string{"Joint", "Joint", "Joint", "Joint"},
		[]string{"3", "3", "3", "3"},
		[]string{"March", "March", "March", "March"},
		[]string{"2024", "2024", "2024", "2024"},
		[]string{"1e400", "1e5", "12345678901234567890.99", "7.25"},
		[]string{"Groceries", "Groceries", "Groceries", "Groceries"},
		[]string{"", "", "", ""},
	)

	res := svc.Submit(suite.ctx, suite.account, rows)
	require.True(suite.T(), res.Committed())
	assert.Equal(suite.T(), 1, res.Saved)
	require.Len(suite.T(), res.Rejected, 3)
	assert.ErrorIs(suite.T(), res.Rejected[0], money.ErrInvalidAmount)
	assert.ErrorIs(suite.T(), res.Rejected[1], money.ErrInvalidAmount)
	assert.ErrorIs(suite.T(), res.Rejected[2], money.ErrAmountOutOfRange)

	ctx, cancel := context.WithTimeout(suite.ctx, 5*time.Second)
	defer cancel()
	entries, err := svc.Ledger(ctx, suite.account)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 1)
	assert.Equal(suite.T(), "$7.25", entries[0].DisplayAmount)
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	ctx     context.Context
	db      *DB
	account *models.Account
}

func (suite *SessionTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.db = newTestDB(suite.T())

	password, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err, "failed to hash password")

	suite.account = &models.Account{
		Name:         "testuser",
		Email:        "test@example.com",
		PasswordHash: password,
		DisplayName:  "Test",
		Currency:     "EUR",
	}
	_, err = suite.db.CreateAccount(suite.ctx, suite.account, "Test")
	require.NoError(suite.T(), err, "failed to create test account")
}

func (suite *SessionTestSuite) newSession(expiresAt time.Time) string {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, token, suite.account.ID, expiresAt))
	return token
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	account, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", account.Name)
	assert.Equal(suite.T(), "EUR", account.Currency)
}

func (suite *SessionTestSuite) TestValidateSessionWithInfo() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	info, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", info.Account.Name)
	assert.Less(suite.T(), time.Since(info.LastActivity), 5*time.Second, "LastActivity should be recent")
}

func (suite *SessionTestSuite) TestExpiredSessionIsRejected() {
	token := suite.newSession(time.Now().Add(-time.Minute))

	_, err := suite.db.ValidateSession(suite.ctx, token)
	assert.ErrorIs(suite.T(), err, models.ErrNotFound)
}

func (suite *SessionTestSuite) TestRenewSession() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	time.Sleep(10 * time.Millisecond)

	originalInfo, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.RenewSession(suite.ctx, token, time.Now().Add(60*24*time.Hour)))

	updatedInfo, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), updatedInfo.LastActivity.After(originalInfo.LastActivity),
		"LastActivity should be updated after renewal")
	assert.True(suite.T(), updatedInfo.ExpiresAt.After(originalInfo.ExpiresAt),
		"ExpiresAt should be extended after renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	_, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err, "session should exist before deletion")

	require.NoError(suite.T(), suite.db.DeleteSession(suite.ctx, token))

	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.Error(suite.T(), err, "expected error after deleting session")
}

func (suite *SessionTestSuite) TestCleanExpiredSessions() {
	live := suite.newSession(time.Now().Add(time.Hour))
	suite.newSession(time.Now().Add(-time.Hour))
	suite.newSession(time.Now().Add(-2 * time.Hour))

	removed, err := suite.db.CleanExpiredSessions(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), removed)

	_, err = suite.db.ValidateSession(suite.ctx, live)
	assert.NoError(suite.T(), err)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	plain := errors.New("no such table")
	assert.Equal(t, plain, classify(plain))
}

func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
