// Package httpapi exposes MOC Studio over REST, Server-Sent Events and gRPC.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/catalog"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

const serviceName = "moc-studio-api"

// ReadyProbe checks the backing stores that are configured. Nil members are
// skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *red.Client
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Services are the domain components the API serves.
type Services struct {
	MOCs    *moc.Service
	Catalog *catalog.Catalog
	Audit   *audit.Ledger
	Auth    *auth.Service
	Events  *notify.Hub
}

// Options tunes the HTTP surface. Zero values take defaults.
type Options struct {
	Version      string
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   float64
	CORSOrigins  []string
	Ready        readinessChecker
}

// API is the HTTP layer.
type API struct {
	mux   *http.ServeMux
	svc   Services
	ready readinessChecker

	version     string
	maxBody     int64
	rateBurst   int
	ratePerSec  float64
	corsOrigins []string
	now         func() time.Time
}

func New(svc Services, opts Options) (*API, error) {
	if svc.MOCs == nil || svc.Catalog == nil || svc.Audit == nil || svc.Auth == nil {
		return nil, errors.New("httpapi: MOC, catalog, audit and auth services are required")
	}
	if svc.Events == nil {
		svc.Events = notify.NewHub()
	}
	a := &API{
		mux:         http.NewServeMux(),
		svc:         svc,
		ready:       opts.Ready,
		version:     opts.Version,
		maxBody:     opts.MaxBodyBytes,
		rateBurst:   opts.RateBurst,
		ratePerSec:  opts.RatePerSec,
		corsOrigins: opts.CORSOrigins,
		now:         time.Now,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.authRoutes()
	a.mocRoutes()
	a.riskRoutes()
	a.catalogRoutes()
	a.userRoutes()
	a.mux.Handle("GET /v1/audit", a.require(auth.CapAuditView, a.listAudit))
	a.mux.Handle("GET /v1/dashboard", a.require(auth.CapDashboardView, a.dashboard))
	a.mux.Handle("GET /v1/events", a.require(auth.CapDashboardView, a.Stream))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
}

// Handler returns the fully wrapped handler for the HTTP server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(a.corsOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              serviceName,
		"time":              a.now().UTC().Format(time.RFC3339),
		"version":           a.version,
		"transition_policy": a.svc.MOCs.Policy().Name(),
	})
}

type dashboardResponse struct {
	MOCsByStatus      map[moc.Status]int    `json:"mocs_by_status"`
	Facilities        int                   `json:"facilities"`
	OpenWorkOrders    int                   `json:"open_work_orders"`
	OverdueWorkOrders int                   `json:"overdue_work_orders"`
	Notifications     []notify.Notification `json:"notifications"`
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := a.svc.MOCs.CountByStatus(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	facilities, err := a.svc.Catalog.ListFacilities(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	orders, err := a.svc.Catalog.ListWorkOrders(ctx, "")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	resp := dashboardResponse{
		MOCsByStatus:  counts,
		Facilities:    len(facilities),
		Notifications: a.svc.Events.Recent(10),
	}
	now := a.now()
	for _, wo := range orders {
		if wo.Status == catalog.WorkOrderCompleted {
			continue
		}
		resp.OpenWorkOrders++
		if wo.Overdue(now) {
			resp.OverdueWorkOrders++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func items[T any](v []T) listResponse[T] {
	if v == nil {
		v = []T{}
	}
	return listResponse[T]{Items: v}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseBoundedInt(name, raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}
