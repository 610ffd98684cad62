package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]bool{
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/v1/info":         true,
	"/v1/auth/login":   true,
	"/v1/auth/refresh": true,
	"/v1/auth/logout":  true,
	"/v1/auth/resume":  true,
}

// withAuth resolves the bearer token into a user on the request context.
// EventSource clients cannot set headers, so /v1/events also accepts
// ?access_token=.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(authHeader)
		if header == "" && r.URL.Path == "/v1/events" {
			if qt := r.URL.Query().Get("access_token"); qt != "" {
				header = bearer + qt
			}
		}
		token, err := extractBearerToken(header)
		if err != nil {
			unauthorized(w, r, "unauthenticated", err.Error())
			return
		}

		user, err := a.svc.Auth.ValidateToken(r.Context(), token)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability rejects requests whose user lacks capability.
func RequireCapability(capability auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				unauthorized(w, r, "unauthenticated", "authentication required")
				return
			}
			if !auth.Can(user.Role, capability) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="moc-studio", error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "forbidden", "missing capability "+string(capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) require(capability auth.Capability, h http.HandlerFunc) http.Handler {
	return RequireCapability(capability)(h)
}

// actor is the audit identity of the authenticated caller.
func actor(r *http.Request) audit.Actor {
	u, _ := auth.UserFromContext(r.Context())
	return u.Actor()
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

