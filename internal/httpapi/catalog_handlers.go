package httpapi

import (
	"context"
	"net/http"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/catalog"
)

// resource wires one catalog kind to the five CRUD routes under base.
type resource[T any] struct {
	base   string
	view   auth.Capability
	manage auth.Capability

	list   func(r *http.Request) ([]T, error)
	get    func(ctx context.Context, id string) (T, error)
	create func(ctx context.Context, v T, actor audit.Actor) (T, error)
	update func(ctx context.Context, v T, actor audit.Actor) (T, error)
	remove func(ctx context.Context, id string, actor audit.Actor) error
	id     func(v *T) *string
}

func register[T any](a *API, res resource[T]) {
	a.mux.Handle("GET "+res.base, a.require(res.view, func(w http.ResponseWriter, r *http.Request) {
		out, err := res.list(r)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items(out))
	}))

	a.mux.Handle("POST "+res.base, a.require(res.manage, func(w http.ResponseWriter, r *http.Request) {
		var v T
		if err := decodeJSON(w, r, &v); err != nil {
			badRequest(w, r, err)
			return
		}
		out, err := res.create(r.Context(), v, actor(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		w.Header().Set("Location", res.base+"/"+*res.id(&out))
		writeJSON(w, http.StatusCreated, out)
	}))

	a.mux.Handle("GET "+res.base+"/{id}", a.require(res.view, func(w http.ResponseWriter, r *http.Request) {
		out, err := res.get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}))

	a.mux.Handle("PUT "+res.base+"/{id}", a.require(res.manage, func(w http.ResponseWriter, r *http.Request) {
		var v T
		if err := decodeJSON(w, r, &v); err != nil {
			badRequest(w, r, err)
			return
		}
		// The path wins over any id in the body.
		*res.id(&v) = r.PathValue("id")
		out, err := res.update(r.Context(), v, actor(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}))

	a.mux.Handle("DELETE "+res.base+"/{id}", a.require(res.manage, func(w http.ResponseWriter, r *http.Request) {
		if err := res.remove(r.Context(), r.PathValue("id"), actor(r)); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (a *API) catalogRoutes() {
	c := a.svc.Catalog

	register(a, resource[catalog.Facility]{
		base:   "/v1/facilities",
		view:   auth.CapDashboardView,
		manage: auth.CapFacilitiesManage,
		list:   func(r *http.Request) ([]catalog.Facility, error) { return c.ListFacilities(r.Context()) },
		get:    c.GetFacility,
		create: c.CreateFacility,
		update: c.UpdateFacility,
		remove: c.DeleteFacility,
		id:     func(v *catalog.Facility) *string { return &v.ID },
	})

	register(a, resource[catalog.Asset]{
		base:   "/v1/assets",
		view:   auth.CapDashboardView,
		manage: auth.CapAssetsManage,
		list: func(r *http.Request) ([]catalog.Asset, error) {
			return c.ListAssets(r.Context(), r.URL.Query().Get("facility_id"))
		},
		get:    c.GetAsset,
		create: c.CreateAsset,
		update: c.UpdateAsset,
		remove: c.DeleteAsset,
		id:     func(v *catalog.Asset) *string { return &v.ID },
	})

	register(a, resource[catalog.WorkOrder]{
		base:   "/v1/work-orders",
		view:   auth.CapDashboardView,
		manage: auth.CapWorkOrdersManage,
		list: func(r *http.Request) ([]catalog.WorkOrder, error) {
			return c.ListWorkOrders(r.Context(), r.URL.Query().Get("moc_id"))
		},
		get:    c.GetWorkOrder,
		create: c.CreateWorkOrder,
		update: c.UpdateWorkOrder,
		remove: c.DeleteWorkOrder,
		id:     func(v *catalog.WorkOrder) *string { return &v.ID },
	})

	register(a, resource[catalog.StandardLink]{
		base:   "/v1/standards",
		view:   auth.CapStandardsView,
		manage: auth.CapStandardsManage,
		list: func(r *http.Request) ([]catalog.StandardLink, error) {
			return c.ListStandards(r.Context(), r.URL.Query().Get("category"))
		},
		get:    c.GetStandard,
		create: c.CreateStandard,
		update: c.UpdateStandard,
		remove: c.DeleteStandard,
		id:     func(v *catalog.StandardLink) *string { return &v.ID },
	})
}
