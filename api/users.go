package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/millops/account"
	"github.com/warp/millops/store"
)

// =============================================================================
// USERS
// =============================================================================

const invalidCredentials = "Invalid credentials. Please check your role, full name, and secret password."

func (u UserRequest) row() store.Row {
	row := store.Row{
		"role":            u.Role,
		"full_name":       u.FullName,
		"secret_password": u.SecretPassword,
	}
	if u.WorkDetails != nil {
		row["work_details"] = *u.WorkDetails
	}
	return row
}

func (u UserRequest) validate() error {
	if strings.TrimSpace(u.Role) == "" || strings.TrimSpace(u.FullName) == "" || u.SecretPassword == "" {
		return fmt.Errorf("%w: role, full_name and secret_password are required", errMissing)
	}
	return nil
}

// LoginNames lists the operator names for the login form.
// GET /api/login-names
func (h *Handler) LoginNames(w http.ResponseWriter, r *http.Request) {
	names, err := account.Names(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Failed to fetch user names", err)
		return
	}
	writeJSON(w, http.StatusOK, NamesResponse{Success: true, Names: names})
}

// ListUsers returns every account, newest first.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.Fetch(r.Context(), store.Query{
		Table:   store.TableLoginDetails,
		OrderBy: []store.Order{store.Desc("created_at"), store.Desc("id")},
	})
	if err != nil {
		h.fail(w, r, "Failed to fetch users", err)
		return
	}
	writeJSON(w, http.StatusOK, UsersResponse{Success: true, Users: users})
}

// CreateUser adds an account.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to create user", err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, "Failed to create user", err)
		return
	}

	rows, err := h.Store.Insert(r.Context(), store.TableLoginDetails, []store.Row{req.row()})
	if err != nil {
		h.fail(w, r, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: rows[0]})
}

// UpdateUser replaces an account.
// PUT /api/users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, "Failed to update user", err)
		return
	}
	var req UserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to update user", err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, "Failed to update user", err)
		return
	}

	set := req.row()
	set["updated_at"] = h.now().UTC()
	rows, err := h.Store.Update(r.Context(), store.TableLoginDetails, set, store.Eq("id", id))
	if err != nil {
		h.fail(w, r, "Failed to update user", err)
		return
	}
	if len(rows) == 0 {
		h.fail(w, r, "Failed to update user", store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: rows[0]})
}

// DeleteUser removes an account.
// DELETE /api/users/{id}?deleted_by=
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, store.TableLoginDetails, "user", "User deleted successfully")
}

// Login checks credentials and stamps the login time.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var c account.Credentials
	if err := decodeJSON(r, &c); err != nil {
		h.fail(w, r, "Failed to log in", err)
		return
	}

	log := h.log(r).With(zap.String("role", c.Role), zap.String("full_name", c.FullName))
	user, err := account.Login(r.Context(), h.Store, c, h.now())
	if err != nil {
		log.Info("login rejected", zap.Error(err))
		h.fail(w, r, invalidCredentials, err)
		return
	}

	log.Info("login succeeded")
	writeJSON(w, http.StatusOK, UserResponse{
		Success: true,
		User: LoginUserDTO{
			ID:       user["id"],
			FullName: store.Text(user["full_name"]),
			Role:     store.Text(user["role"]),
		},
	})
}
