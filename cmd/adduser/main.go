package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"household-ledger/internal/auth"
	"household-ledger/internal/config"
	"household-ledger/internal/models"
	"household-ledger/internal/money"
	"household-ledger/internal/storage"
	"household-ledger/internal/storage/postgres"

	"golang.org/x/term"
)

const defaultDBPath = "expenses.db"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Account name")
	email := fs.String("email", "", "Email (defaults to <user>@localhost)")
	displayName := fs.String("display", "", "Display name (defaults to the account name)")
	currency := fs.String("currency", "USD", "Currency code: USD or EUR")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dbPath := fs.String("db", defaultDBPath, "Path to database file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <name> [-email <email>] [-display <name>] [-currency USD|EUR] [-password <password>] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	*currency = strings.ToUpper(strings.TrimSpace(*currency))
	if !money.Supported(*currency) {
		return fmt.Errorf("unsupported currency %q", *currency)
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	// DB_PATH wins only when -db was left at its default.
	if path := os.Getenv("DB_PATH"); path != "" && *dbPath == defaultDBPath {
		*dbPath = path
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if existing, err := store.GetAccountByName(ctx, *username); err == nil && existing != nil {
		return fmt.Errorf("account %s already exists", *username)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Name:         *username,
		Email:        *email,
		PasswordHash: hash,
		DisplayName:  *displayName,
		Currency:     *currency,
	}
	if account.Email == "" {
		account.Email = *username + "@localhost"
	}
	if account.DisplayName == "" {
		account.DisplayName = *username
	}

	person, err := store.CreateAccount(ctx, account, account.DisplayName)
	if err != nil {
		if errors.Is(err, models.ErrNameTaken) {
			return fmt.Errorf("account %s already exists", *username)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Fprintf(stdout, "Account %s created successfully with ID %d (person %q, ID %d)\n",
		account.Name, account.ID, person.Name, person.ID)
	return nil
}

// openStore uses Postgres when DB_DRIVER=postgres and SQLite otherwise.
func openStore(dbPath string) (storage.Store, error) {
	if os.Getenv("DB_DRIVER") == config.DriverPostgres {
		return postgres.Open(config.DBConfig{Driver: config.DriverPostgres, DSN: os.Getenv("DB_DSN")})
	}
	return storage.NewDB(dbPath)
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
