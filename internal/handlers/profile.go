package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"household-ledger/internal/auth"
	"household-ledger/internal/models"
	"household-ledger/internal/money"
	"household-ledger/internal/storage"
)

// ProfileViewModel holds data for the profile page.
type ProfileViewModel struct {
	Page
	Persons    []models.Person
	Currencies []string
}

// Profile renders the account settings and household members.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r)
	persons, err := h.store.ListPersons(r.Context(), account.ID)
	if err != nil {
		h.log.InternalError("handlers: list persons", err, "account_id", account.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "profile.html", ProfileViewModel{
		Page:       Page{Account: account, Flash: h.popFlash(w, r)},
		Persons:    persons,
		Currencies: money.Currencies(),
	})
}

var errProfileInput = errors.New("invalid profile input")

// UpdateProfile saves display name, currency, password and persons.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r)
	if err := r.ParseForm(); err != nil {
		h.setFlash(w, flashError, "Invalid form submission")
		http.Redirect(w, r, "/profile", http.StatusFound)
		return
	}

	if msg, err := h.applyProfile(r, account); err != nil {
		if !errors.Is(err, errProfileInput) {
			h.log.InternalError("handlers: update profile", err, "account_id", account.ID)
		}
		h.setFlash(w, flashError, msg)
	} else {
		h.setFlash(w, flashSuccess, "Profile updated.")
	}
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// applyProfile returns a user-facing message alongside any error. All writes
// happen in one transaction, so a failure leaves the account untouched.
func (h *Handlers) applyProfile(r *http.Request, account *models.Account) (string, error) {
	displayName := strings.TrimSpace(r.PostFormValue("display_name"))
	currency := strings.ToUpper(strings.TrimSpace(r.PostFormValue("currency")))
	if displayName == "" {
		return "Display name cannot be empty", errProfileInput
	}
	if !money.Supported(currency) {
		return "Unsupported currency", errProfileInput
	}

	var passwordHash string
	if newPassword := r.PostFormValue("new_password"); newPassword != "" {
		if !auth.CheckPassword(r.PostFormValue("current_password"), account.PasswordHash) {
			return "Current password is incorrect", errProfileInput
		}
		if newPassword != r.PostFormValue("confirm_password") {
			return "New passwords do not match", errProfileInput
		}
		hash, err := auth.HashPassword(newPassword)
		if err != nil {
			return "Could not change the password", err
		}
		passwordHash = hash
	}

	msg := "Could not save the profile. Nothing was changed."
	err := h.store.Atomic(r.Context(), func(tx storage.Store) error {
		if passwordHash != "" {
			if err := tx.UpdatePassword(r.Context(), account.ID, passwordHash); err != nil {
				return err
			}
		}
		if err := tx.UpdateProfile(r.Context(), account.ID, displayName, currency); err != nil {
			return err
		}
		return applyPersons(r, tx, account.ID, &msg)
	})
	if err != nil {
		return msg, err
	}
	return "", nil
}

// applyPersons renames listed persons and adds the ones posted as "new".
// On an input problem it replaces *msg with a message naming it.
func applyPersons(r *http.Request, tx storage.Store, accountID int64, msg *string) error {
	ids := r.PostForm["person_ids[]"]
	names := r.PostForm["person_names[]"]
	for i, rawID := range ids {
		if i >= len(names) {
			break
		}
		name := strings.TrimSpace(names[i])
		if name == "" {
			continue
		}
		if rawID == "new" {
			if _, err := tx.CreatePerson(r.Context(), accountID, name); err != nil {
				*msg = "Could not add " + name + ". Nothing was changed."
				return err
			}
			continue
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			*msg = "Unknown household member. Nothing was changed."
			return errProfileInput
		}
		if err := tx.RenamePerson(r.Context(), accountID, id, name); err != nil {
			if errors.Is(err, models.ErrPersonNotFound) {
				*msg = "Unknown household member. Nothing was changed."
				return errProfileInput
			}
			*msg = "Could not rename " + name + ". Nothing was changed."
			return err
		}
	}
	return nil
}
