package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"household-ledger/internal/auth"
	"household-ledger/internal/models"
	"household-ledger/internal/money"
)

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Page
	Error    string
	Username string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.store.ValidateSession(r.Context(), cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}
	h.render(w, r, "login.html", LoginViewModel{Page: Page{Flash: h.popFlash(w, r)}})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	vm := LoginViewModel{Username: username}

	if username == "" || password == "" {
		vm.Error = "Username and password are required"
		h.render(w, r, "login.html", vm)
		return
	}

	account, err := h.store.GetAccountByName(r.Context(), username)
	if err != nil || !auth.CheckPassword(password, account.PasswordHash) {
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			h.log.InternalError("handlers: account lookup failed", err)
		}
		vm.Error = "Invalid username or password"
		h.render(w, r, "login.html", vm)
		return
	}

	if err := h.startSession(w, r, account); err != nil {
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, "login.html", vm)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// startSession creates a session for account and sets the cookie.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, account *models.Account) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.log.InternalError("handlers: generate session token", err)
		return err
	}

	now := time.Now()
	if err := h.store.CreateSession(r.Context(), token, account.ID, now.Add(h.opts.SessionTTL)); err != nil {
		h.log.InternalError("handlers: create session", err, "account_id", account.ID)
		return err
	}
	if err := h.store.TouchLastLogin(r.Context(), account.ID, now); err != nil {
		h.log.Warn("handlers: record last login", "account_id", account.ID, "err", err)
	}

	h.setSessionCookie(w, token)
	h.log.Info("handlers: logged in", "account_id", account.ID)
	return nil
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.log.Error("handlers: delete session", "err", err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RegisterForm holds the values echoed back into the registration form.
type RegisterForm struct {
	Name        string
	Email       string
	DisplayName string
	Currency    string
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Page
	Error      string
	Form       RegisterForm
	Currencies []string
}

// RegisterPage renders the registration form.
func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", RegisterViewModel{
		Form:       RegisterForm{Currency: h.opts.DefaultCurrency},
		Currencies: money.Currencies(),
	})
}

// Register creates an account with a default person and logs it in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	vm := RegisterViewModel{Currencies: money.Currencies()}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, "register.html", vm)
		return
	}

	vm.Form = RegisterForm{
		Name:        strings.TrimSpace(r.FormValue("account_name")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		DisplayName: strings.TrimSpace(r.FormValue("display_name")),
		Currency:    strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
	}
	password := r.FormValue("password")

	if vm.Form.Currency == "" {
		vm.Form.Currency = h.opts.DefaultCurrency
	}
	if vm.Form.DisplayName == "" {
		vm.Form.DisplayName = vm.Form.Name
	}

	switch {
	case vm.Form.Name == "" || vm.Form.Email == "":
		vm.Error = "Account name and email are required"
	case strings.TrimSpace(password) == "":
		vm.Error = "Password cannot be empty"
	case !money.Supported(vm.Form.Currency):
		vm.Error = "Unsupported currency"
	}
	if vm.Error != "" {
		h.renderStatus(w, r, http.StatusBadRequest, "register.html", vm)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		h.log.InternalError("handlers: hash password", err)
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, "register.html", vm)
		return
	}

	account := &models.Account{
		Name:         vm.Form.Name,
		Email:        vm.Form.Email,
		PasswordHash: hash,
		DisplayName:  vm.Form.DisplayName,
		Currency:     vm.Form.Currency,
	}
	if _, err := h.store.CreateAccount(r.Context(), account, account.DisplayName); err != nil {
		if errors.Is(err, models.ErrNameTaken) {
			vm.Error = "That account name or email is already registered"
			h.renderStatus(w, r, http.StatusConflict, "register.html", vm)
			return
		}
		h.log.InternalError("handlers: create account", err)
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, "register.html", vm)
		return
	}
	h.log.Info("handlers: account registered", "account_id", account.ID)

	if err := h.startSession(w, r, account); err != nil {
		h.setFlash(w, flashSuccess, "Account created. Please log in.")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
