package httpapi

import (
	"net/http"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

type transitionRequest struct {
	To      string `json:"to"`
	Details string `json:"details"`
	Version int64  `json:"version"`
}

type commentRequest struct {
	Text    string `json:"text"`
	Version int64  `json:"version"`
}

type assessRequest struct {
	Probability int    `json:"probability"`
	Severity    int    `json:"severity"`
	Mitigation  string `json:"mitigation"`
	Residual    string `json:"residual_risk,omitempty"`
	Version     int64  `json:"version"`
}

type assessResponse struct {
	MOC        moc.Request     `json:"moc"`
	Assessment risk.Assessment `json:"assessment"`
}

func (a *API) mocRoutes() {
	a.mux.Handle("GET /v1/mocs", a.require(auth.CapMOCsView, a.listMOCs))
	a.mux.Handle("POST /v1/mocs", a.require(auth.CapMOCsManage, a.createMOC))
	a.mux.Handle("GET /v1/mocs/{id}", a.require(auth.CapMOCsView, a.getMOC))
	a.mux.Handle("GET /v1/mocs/{id}/history", a.require(auth.CapMOCsView, a.mocHistory))
	a.mux.Handle("POST /v1/mocs/{id}/transitions", a.require(auth.CapMOCsManage, a.transitionMOC))
	a.mux.Handle("POST /v1/mocs/{id}/comments", a.require(auth.CapMOCsManage, a.commentMOC))
	a.mux.Handle("PUT /v1/mocs/{id}/risk", a.require(auth.CapRiskManage, a.assessMOC))
}

func (a *API) listMOCs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseBoundedInt("limit", q.Get("limit"), 100, 1, 1000)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	f := moc.Filter{
		FacilityID:  strings.TrimSpace(q.Get("facility_id")),
		RequesterID: strings.TrimSpace(q.Get("requester_id")),
		Limit:       limit,
	}
	if raw := q.Get("status"); raw != "" {
		st, err := moc.ParseStatus(raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		f.Status = st
	}
	reqs, err := a.svc.MOCs.List(r.Context(), f)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(reqs))
}

func (a *API) createMOC(w http.ResponseWriter, r *http.Request) {
	var d moc.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		badRequest(w, r, err)
		return
	}
	req, err := a.svc.MOCs.Create(r.Context(), d, actor(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/mocs/"+req.ID)
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) getMOC(w http.ResponseWriter, r *http.Request) {
	req, err := a.svc.MOCs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) mocHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := a.svc.MOCs.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(hist))
}

func (a *API) transitionMOC(w http.ResponseWriter, r *http.Request) {
	var body transitionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	to, err := moc.ParseStatus(body.To)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	req, err := a.svc.MOCs.Transition(r.Context(), r.PathValue("id"), to, actor(r), body.Details, body.Version)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) commentMOC(w http.ResponseWriter, r *http.Request) {
	var body commentRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	req, err := a.svc.MOCs.Comment(r.Context(), r.PathValue("id"), actor(r), body.Text, body.Version)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) assessMOC(w http.ResponseWriter, r *http.Request) {
	var body assessRequest
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	in := moc.RiskInput{Probability: body.Probability, Severity: body.Severity, Mitigation: body.Mitigation}
	if strings.TrimSpace(body.Residual) != "" {
		residual, err := risk.ParseTier(body.Residual)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		in.Residual = residual
	}
	req, assessment, err := a.svc.MOCs.AssessRisk(r.Context(), r.PathValue("id"), actor(r), in, body.Version)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessResponse{MOC: req, Assessment: assessment})
}
