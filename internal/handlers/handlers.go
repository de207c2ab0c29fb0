package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
	"household-ledger/internal/storage"
	"household-ledger/pkg/logger"
	"household-ledger/web"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// AccountContextKey is the context key for the authenticated account.
	AccountContextKey contextKey = "account"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// FlashCookieName carries a one-shot status message across a redirect.
	FlashCookieName = "flash"
	// DefaultSessionTTL is how long sessions last when Options leaves it unset.
	DefaultSessionTTL = 30 * 24 * time.Hour
)

var views = []string{"login.html", "register.html", "index.html", "profile.html", "summary.html"}

// Options tunes cookie and account defaults.
type Options struct {
	SecureCookie    bool
	SessionTTL      time.Duration
	DefaultCurrency string
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store     storage.Store
	ledger    *ledger.Service
	log       logger.Logger
	opts      Options
	templates map[string]*template.Template
}

// NewHandlers parses the embedded templates and wires the handlers to store.
func NewHandlers(store storage.Store, svc *ledger.Service, opts Options, log logger.Logger) (*Handlers, error) {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}

	templates := make(map[string]*template.Template, len(views))
	for _, view := range views {
		tmpl, err := template.ParseFS(web.TemplatesFS, "templates/base.html", "templates/"+view)
		if err != nil {
			return nil, err
		}
		templates[view] = tmpl
	}

	return &Handlers{store: store, ledger: svc, log: log, opts: opts, templates: templates}, nil
}

// Page is embedded by every view model; base.html reads both fields.
type Page struct {
	Account *models.Account
	Flash   *Flash
}

// AccountFromContext retrieves the authenticated account from request context.
func AccountFromContext(r *http.Request) *models.Account {
	if account, ok := r.Context().Value(AccountContextKey).(*models.Account); ok {
		return account
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		sessionInfo, err := h.store.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < h.opts.SessionTTL/2 {
			if err := h.store.RenewSession(r.Context(), cookie.Value, now.Add(h.opts.SessionTTL)); err == nil {
				h.setSessionCookie(w, cookie.Value)
			} else {
				h.log.Warn("handlers: session renewal failed", "account_id", sessionInfo.Account.ID, "err", err)
			}
		}

		ctx := context.WithValue(r.Context(), AccountContextKey, sessionInfo.Account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

const (
	flashSuccess = "success"
	flashError   = "error"
)

// Flash is a status message shown once on the next page.
type Flash struct {
	Kind    string
	Message string
}

func (h *Handlers) setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    escapeFlash(kind+":"+message, maxFlashValue),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// maxFlashValue bounds the escaped flash cookie value in bytes.
const maxFlashValue = 1024

// escapeFlash query-escapes s, cutting it short with "..." when the escaped
// form would exceed limit bytes.
func escapeFlash(s string, limit int) string {
	escaped := url.QueryEscape(s)
	if len(escaped) <= limit {
		return escaped
	}
	n := 0
	for i, r := range s {
		n += len(url.QueryEscape(string(r)))
		if n > limit-len("...") {
			return url.QueryEscape(s[:i]) + "..."
		}
	}
	return escaped
}

// popFlash reads the flash cookie and expires it.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(raw, ":")
	if !ok || (kind != flashSuccess && kind != flashError) {
		return nil
	}
	return &Flash{Kind: kind, Message: message}
}

// Health reports whether the store answers.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("handlers: health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	h.renderStatus(w, r, http.StatusOK, viewName, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	tmpl, ok := h.templates[viewName]
	if !ok {
		h.log.Error("handlers: unknown template", "view", viewName)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		h.log.Error("handlers: template execution failed", "view", viewName, "err", err)
	}
}
