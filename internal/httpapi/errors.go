package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

type errorResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	From      moc.Status `json:"from,omitempty"`
	To        moc.Status `json:"to,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   msg,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// writeAppError maps the apperr taxonomy onto HTTP status codes.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var te *moc.TransitionError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "invalid_transition",
			Message:   te.Error(),
			RequestID: audit.RequestIDFromContext(r.Context()),
			From:      te.From,
			To:        te.To,
		})
		return
	}
	switch apperr.Kind(err) {
	case apperr.ErrValidation:
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	case apperr.ErrNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case apperr.ErrInvalidTransition:
		writeError(w, r, http.StatusConflict, "invalid_transition", err.Error())
	case apperr.ErrConflict:
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case apperr.ErrSessionExpired:
		unauthorized(w, r, "session_expired", err.Error())
	case apperr.ErrUnauthenticated:
		unauthorized(w, r, "unauthenticated", err.Error())
	case apperr.ErrForbidden:
		writeError(w, r, http.StatusForbidden, "forbidden", err.Error())
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, code, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="moc-studio", error="`+strings.ReplaceAll(code, `"`, "")+`"`)
	writeError(w, r, http.StatusUnauthorized, code, msg)
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
}
