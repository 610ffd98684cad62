package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

// userRequest carries Active as a pointer so a missing field means "keep" on
// update and "active" on create. An empty Password keeps the current one.
type userRequest struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"role"`
	Active   *bool     `json:"active,omitempty"`
	Password string    `json:"password,omitempty"`
}

func (b userRequest) passwordHash(current string) (string, error) {
	if b.Password == "" {
		return current, nil
	}
	return auth.HashPassword(b.Password)
}

func (a *API) userRoutes() {
	a.mux.Handle("GET /v1/users", a.require(auth.CapUsersManage, a.listUsers))
	a.mux.Handle("POST /v1/users", a.require(auth.CapUsersManage, a.createUser))
	a.mux.Handle("GET /v1/users/{id}", a.require(auth.CapUsersManage, a.getUser))
	a.mux.Handle("PUT /v1/users/{id}", a.require(auth.CapUsersManage, a.updateUser))
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.Auth.Users().List(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(users))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.Auth.Users().Find(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	u := auth.User{ID: body.ID, Name: body.Name, Email: body.Email, Role: body.Role, Active: true}
	if body.Active != nil {
		u.Active = *body.Active
	}
	hash, err := body.passwordHash("")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	u.PasswordHash = hash
	created, err := a.svc.Auth.Users().Create(r.Context(), u)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	a.recordUser(r, created.ID, fmt.Sprintf("created user %s with role %s", created.Email, created.Role), nil)
	w.Header().Set("Location", "/v1/users/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	users := a.svc.Auth.Users()
	cur, err := users.Find(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	next := auth.User{ID: cur.ID, Name: body.Name, Email: body.Email, Role: body.Role, Active: cur.Active}
	if body.Active != nil {
		next.Active = *body.Active
	}
	if next.PasswordHash, err = body.passwordHash(cur.PasswordHash); err != nil {
		writeAppError(w, r, err)
		return
	}
	updated, err := users.Update(r.Context(), next)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	a.recordUser(r, updated.ID, "updated user "+updated.Email, userChanges(cur, updated))
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) recordUser(r *http.Request, id, details string, changes []audit.Change) {
	entry := actor(r).Entry("user", audit.ActionWrite, details)
	entry.Changes = changes
	if _, err := a.svc.Audit.Append(r.Context(), id, entry); err != nil {
		obs.Logger().Warn("audit_append_failed", zap.String("target", id), zap.Error(err))
	}
}

func userChanges(before, after auth.User) []audit.Change {
	var out []audit.Change
	add := func(field, old, cur string) {
		if old != cur {
			out = append(out, audit.Change{Field: field, OldValue: old, NewValue: cur})
		}
	}
	add("name", before.Name, after.Name)
	add("email", before.Email, after.Email)
	add("role", string(before.Role), string(after.Role))
	add("active", fmt.Sprint(before.Active), fmt.Sprint(after.Active))
	if before.PasswordHash != after.PasswordHash {
		out = append(out, audit.Change{Field: "password", NewValue: "changed"})
	}
	return out
}
