package httpapi

import (
	"net/http"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resumeRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	User         auth.User         `json:"user"`
	Capabilities []auth.Capability `json:"capabilities"`
}

func (a *API) authRoutes() {
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /v1/auth/resume", a.handleResume)
	a.mux.HandleFunc("GET /v1/auth/me", a.handleMe)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	sess, err := a.svc.Auth.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	sess, err := a.svc.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := a.svc.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResume restores a client session from stored tokens.
func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	sess, err := a.svc.Auth.Resume(r.Context(), req.Token, req.RefreshToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "unauthenticated", "authentication required")
		return
	}
	caps := auth.Granted(u.Role)
	if caps == nil {
		caps = []auth.Capability{}
	}
	writeJSON(w, http.StatusOK, meResponse{User: u, Capabilities: caps})
}
