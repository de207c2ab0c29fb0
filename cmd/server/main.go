package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"household-ledger/internal/auth"
	"household-ledger/internal/catalog"
	"household-ledger/internal/config"
	"household-ledger/internal/handlers"
	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
	"household-ledger/internal/storage"
	"household-ledger/internal/storage/postgres"
	"household-ledger/pkg/logger"
	"household-ledger/web"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewFromConfig(os.Stdout, cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Critical("config: invalid", "err", err)
		os.Exit(1)
	}
	log.Info("app: starting", "env", cfg.Env, "driver", cfg.DB.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.DB)
	if err != nil {
		log.Critical("db: open failed", "err", err)
		os.Exit(1)
	}

	if err := prepare(ctx, store, cfg, log); err != nil {
		log.Critical("app: init failed", "err", err)
		store.Close()
		os.Exit(1)
	}

	h, err := handlers.NewHandlers(store, ledger.NewService(store, log), handlers.Options{
		SecureCookie:    cfg.SecureCookie,
		SessionTTL:      cfg.SessionTTL,
		DefaultCurrency: cfg.DefaultCurrency,
	}, log)
	if err != nil {
		log.Critical("app: templates failed", "err", err)
		store.Close()
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("http: listening", "addr", srv.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("app: shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			log.Critical("http: server failed", "addr", srv.Addr, "err", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http: graceful shutdown failed", "err", err)
		exitCode = 1
	}

	if err := store.Close(); err != nil {
		log.Error("app: close failed", "err", err)
		exitCode = 1
	}

	if exitCode == 0 {
		log.Info("app: stopped")
		return
	}
	os.Exit(exitCode)
}

func openStore(cfg config.DBConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg)
	case config.DriverSQLite, "":
		return storage.NewDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

// prepare syncs the category catalog, drops expired sessions and creates the
// bootstrap account. It runs once before the server accepts requests.
func prepare(ctx context.Context, store storage.Store, cfg config.Config, log logger.Logger) error {
	seed, err := catalog.LoadSeed(cfg.CategorySeedFile)
	if err != nil {
		return err
	}
	inserted, err := catalog.Sync(ctx, store, seed)
	if err != nil {
		return fmt.Errorf("sync categories: %w", err)
	}
	log.Info("catalog: synced", "seed", len(seed), "inserted", len(inserted))

	if removed, err := store.CleanExpiredSessions(ctx); err != nil {
		log.Warn("sessions: cleanup failed", "err", err)
	} else if removed > 0 {
		log.Info("sessions: expired removed", "count", removed)
	}

	return bootstrapAdmin(ctx, store, cfg, log)
}

// bootstrapAdmin creates the ADMIN_USER account when no account exists yet.
func bootstrapAdmin(ctx context.Context, store storage.Store, cfg config.Config, log logger.Logger) error {
	if cfg.Admin.User == "" {
		return nil
	}
	count, err := store.AccountCount(ctx)
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	email := cfg.Admin.Email
	if email == "" {
		email = cfg.Admin.User + "@localhost"
	}
	account := &models.Account{
		Name:         cfg.Admin.User,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  cfg.Admin.User,
		Currency:     cfg.DefaultCurrency,
	}
	if _, err := store.CreateAccount(ctx, account, cfg.Admin.User); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	log.Info("app: bootstrap account created", "account_id", account.ID, "name", account.Name)
	return nil
}

func setupRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	static, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Get("/health", h.Health)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/register", h.RegisterPage)
	r.Post("/register", h.Register)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/", h.Index)
		r.Post("/submit", h.Submit)
		r.Get("/summary", h.Statistics)
		r.Get("/profile", h.Profile)
		r.Post("/profile", h.UpdateProfile)
	})

	return r
}
