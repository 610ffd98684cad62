package httpapi

import (
	"net/http"
	"strconv"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/report"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

type classifyRequest struct {
	Probability int `json:"probability"`
	Severity    int `json:"severity"`
}

type classifyResponse struct {
	risk.Assessment
	Presentation risk.Presentation `json:"presentation"`
	Approval     string            `json:"approval"`
}

type matrixResponse struct {
	Rows [][]classifyResponse `json:"rows"`
}

// reportRequest selects a matrix cell. Leaving both levels out renders the
// global overview.
type reportRequest struct {
	Probability *int `json:"probability,omitempty"`
	Severity    *int `json:"severity,omitempty"`
}

func (a *API) riskRoutes() {
	a.mux.Handle("POST /v1/risk/classify", a.require(auth.CapDashboardView, a.classify))
	a.mux.Handle("GET /v1/risk/matrix", a.require(auth.CapDashboardView, a.matrix))
	a.mux.Handle("POST /v1/risk/report", a.require(auth.CapDashboardView, a.riskReport))
}

func describe(as risk.Assessment) classifyResponse {
	return classifyResponse{
		Assessment:   as,
		Presentation: risk.Present(as.Tier),
		Approval:     as.RequiredApproval.Description(),
	}
}

func (a *API) classify(w http.ResponseWriter, r *http.Request) {
	var body classifyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	as, err := risk.Classify(body.Probability, body.Severity)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	obs.ObserveClassification(as.Tier.String())
	writeJSON(w, http.StatusOK, describe(as))
}

func (a *API) matrix(w http.ResponseWriter, r *http.Request) {
	grid := risk.Matrix()
	resp := matrixResponse{Rows: make([][]classifyResponse, len(grid))}
	for i, row := range grid {
		resp.Rows[i] = make([]classifyResponse, len(row))
		for j, cell := range row {
			resp.Rows[i][j] = describe(cell)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) riskReport(w http.ResponseWriter, r *http.Request) {
	var body reportRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	in := report.Input{GeneratedAt: a.now()}
	if u, ok := auth.UserFromContext(r.Context()); ok {
		in.Author = u.Name
		in.Role = string(u.Role)
	}
	switch {
	case body.Probability != nil && body.Severity != nil:
		in.Selection = &report.Cell{Probability: *body.Probability, Severity: *body.Severity}
	case body.Probability != nil || body.Severity != nil:
		writeError(w, r, http.StatusBadRequest, "validation_failed", "probability and severity must be given together")
		return
	default:
		counts, err := a.svc.MOCs.CountByStatus(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		for _, st := range moc.Statuses {
			in.MOCCounts = append(in.MOCCounts, report.StatusCount{Label: st.Label(), Count: counts[st]})
		}
	}

	rep, err := report.Render(in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if rep.Assessment != nil {
		obs.ObserveClassification(rep.Assessment.Tier.String())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Filename+`"`)
	w.Header().Set("X-Report-Digest", rep.Digest)
	w.Header().Set("Content-Length", strconv.Itoa(len(rep.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rep.Body))
}
