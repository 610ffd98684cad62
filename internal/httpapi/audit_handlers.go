package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
)

// listAudit serves either one target's trail (?target=) or the global view
// filtered by action, since and limit.
func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if target := strings.TrimSpace(q.Get("target")); target != "" {
		entries, err := a.svc.Audit.Read(r.Context(), target)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items(entries))
		return
	}

	limit, err := parseBoundedInt("limit", q.Get("limit"), 100, 1, 1000)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	query := audit.Query{Limit: limit}
	if raw := q.Get("action"); raw != "" {
		act, err := audit.ParseAction(raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		query.Action = act
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAppError(w, r, fmt.Errorf("%w: since must be RFC 3339", apperr.ErrValidation))
			return
		}
		query.Since = since
	}
	entries, err := a.svc.Audit.All(r.Context(), query)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(entries))
}
