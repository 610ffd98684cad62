// Package seed holds the demo data set used by in-memory deployments and
// tests. The same records ship as SQL in migrations/seeds.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/catalog"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
)

// Dataset is a complete set of demo records.
type Dataset struct {
	Facilities []catalog.Facility
	Users      []auth.User
	Assets     []catalog.Asset
	MOCs       []moc.Request
	WorkOrders []catalog.WorkOrder
	Standards  []catalog.StandardLink
}

// Targets are the stores Load writes into. Nil targets are skipped.
type Targets struct {
	Users     auth.UserStore
	MOCs      moc.Store
	Documents catalog.DocumentStore
}

// Counts reports how many records Load wrote per kind.
type Counts struct {
	Facilities, Users, Assets, MOCs, WorkOrders, Standards int
}

// Load writes d into t. Records are written as-is, bypassing service
// validation and auditing.
func Load(ctx context.Context, d Dataset, t Targets) (Counts, error) {
	var c Counts
	if t.Users != nil {
		for _, u := range d.Users {
			if _, err := t.Users.Create(ctx, u); err != nil {
				return c, fmt.Errorf("seed user %s: %w", u.ID, err)
			}
			c.Users++
		}
	}
	if t.MOCs != nil {
		for _, r := range d.MOCs {
			if err := t.MOCs.Create(ctx, r); err != nil {
				return c, fmt.Errorf("seed MOC %s: %w", r.ID, err)
			}
			c.MOCs++
		}
	}
	if t.Documents == nil {
		return c, nil
	}
	var err error
	if c.Facilities, err = putAll(ctx, t.Documents, catalog.KindFacility, d.Facilities, func(f catalog.Facility) string { return f.ID }); err != nil {
		return c, err
	}
	if c.Assets, err = putAll(ctx, t.Documents, catalog.KindAsset, d.Assets, func(a catalog.Asset) string { return a.ID }); err != nil {
		return c, err
	}
	if c.WorkOrders, err = putAll(ctx, t.Documents, catalog.KindWorkOrder, d.WorkOrders, func(w catalog.WorkOrder) string { return w.ID }); err != nil {
		return c, err
	}
	if c.Standards, err = putAll(ctx, t.Documents, catalog.KindStandard, d.Standards, func(s catalog.StandardLink) string { return s.ID }); err != nil {
		return c, err
	}
	return c, nil
}

func putAll[T any](ctx context.Context, docs catalog.DocumentStore, kind string, items []T, id func(T) string) (int, error) {
	for i, item := range items {
		body, err := json.Marshal(item)
		if err != nil {
			return i, fmt.Errorf("seed %s: %w", kind, err)
		}
		if err := docs.Put(ctx, kind, id(item), body); err != nil {
			return i, fmt.Errorf("seed %s %s: %w", kind, id(item), err)
		}
	}
	return len(items), nil
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

// Demo returns the demonstration data set. Each call returns fresh slices.
func Demo() Dataset {
	return Dataset{
		Facilities: []catalog.Facility{
			{ID: "1", Name: "P-50 Albacora Leste", Location: "Bacia de Campos", Type: "FPSO", Status: catalog.FacilityActive},
			{ID: "2", Name: "P-57 Jubarte", Location: "Bacia do Espirito Santo", Type: "FPSO", Status: catalog.FacilityActive},
			{ID: "3", Name: "Plataforma Mexilhao", Location: "Bacia de Santos", Type: "Fixed", Status: catalog.FacilityMaintenance},
		},
		Users: []auth.User{
			{ID: "1", Name: "Admin User", Email: "admin@moctudio.com", Role: auth.RoleAdmin, Active: true},
			{ID: "2", Name: "Carlos Processos", Email: "carlos@oilgas.com", Role: auth.RoleProcessEngineer, Active: true},
			{ID: "3", Name: "Ana HSE", Email: "ana@oilgas.com", Role: auth.RoleHSECoordinator, Active: true},
		},
		Assets: []catalog.Asset{
			{ID: "ASSET-001", FacilityID: "1", Tag: "VAL-200-01", Name: "Ball valve (SDV)", Type: "Safety valve", Status: "operational", LastMaintenance: "2024-01-10"},
			{ID: "ASSET-002", FacilityID: "1", Tag: "PMP-105-A", Name: "Multistage centrifugal pump", Type: "Export pump", Status: "operational", LastMaintenance: "2023-12-15"},
			{ID: "ASSET-003", FacilityID: "2", Tag: "CMP-400-B", Name: "Natural gas compressor", Type: "Compressor", Status: "maintenance", LastMaintenance: "2024-02-20"},
			{ID: "ASSET-004", FacilityID: "3", Tag: "PIT-500-01", Name: "Differential pressure transmitter", Type: "Instrumentation", Status: "operational", LastMaintenance: "2024-02-05"},
		},
		MOCs: []moc.Request{
			{
				ID: "MOC-24-001", Title: "Pressure control system upgrade - Line 200",
				Description:   "Modernise transducers and interlock logic for higher redundancy.",
				Scope:         "Replace transmitters PT-201/202/203 with HART 7 models and update PLC logic.",
				Justification: "Reduce spurious trips and meet the new functional safety standard.",
				Type:          moc.TypeMajor, FacilityID: "1", RequesterID: "2", Status: moc.StatusUnderEvaluation,
				CreatedAt: ts("2024-02-12T09:15:00Z"), UpdatedAt: ts("2024-02-12T14:30:00Z"), Version: 2,
				History: []moc.HistoryEntry{{
					ID: "h1", UserID: "1", UserName: "Admin User", Action: "Status change to: Under Evaluation",
					Timestamp: ts("2024-02-12T14:30:00Z"), Type: moc.EntryStatusChange,
					Details: "Complete dossier received. Starting multidisciplinary technical review.",
				}},
			},
			{
				ID: "MOC-24-002", Title: "Preventive replacement of SDV-501 actuator",
				Description:   "Replace the pneumatic actuator after intermittent return spring failure.",
				Scope:         "Remove actuator, fit new seal kit and spring, run stroke test.",
				Justification: "Prevent failure to close on the export line emergency shutdown.",
				Type:          moc.TypeRoutine, FacilityID: "2", RequesterID: "1", Status: moc.StatusApproved,
				CreatedAt: ts("2024-02-05T08:00:00Z"), UpdatedAt: ts("2024-02-06T10:00:00Z"), Version: 2,
				History: []moc.HistoryEntry{{
					ID: "h3", UserID: "3", UserName: "Ana HSE", Action: "Status change to: Approved",
					Timestamp: ts("2024-02-06T10:00:00Z"), Type: moc.EntryStatusChange,
					Details: "Approved per preliminary risk analysis. Proceed with care during isolation.",
				}},
			},
			{
				ID: "MOC-24-003", Title: "Compressed air line leak repair",
				Description:   "Corrosion under insulation found on a 2 inch section.",
				Scope:         "Cut the corroded section, weld a new sleeve, penetrant test the weld.",
				Justification: "Risk of pressure loss on platform control instruments.",
				Type:          moc.TypeEmergency, FacilityID: "3", RequesterID: "2", Status: moc.StatusConcluded,
				CreatedAt: ts("2024-02-01T11:45:00Z"), UpdatedAt: ts("2024-02-03T17:00:00Z"), Version: 2,
				History: []moc.HistoryEntry{{
					ID: "h4", UserID: "1", UserName: "Admin User", Action: "Status change to: Concluded",
					Timestamp: ts("2024-02-03T17:00:00Z"), Type: moc.EntryStatusChange,
					Details: "Repair executed and tested. Dossier archived.",
				}},
			},
			{
				ID: "MOC-24-004", Title: "Maintenance workshop layout change",
				Description:   "New benches and removal of a fire-rated bulkhead.",
				Scope:         "Remove bulkhead in section B to extend the welding area.",
				Justification: "More space needed for spool assembly.",
				Type:          moc.TypeMajor, FacilityID: "1", RequesterID: "2", Status: moc.StatusRejected,
				CreatedAt: ts("2024-01-20T14:00:00Z"), UpdatedAt: ts("2024-01-22T16:30:00Z"), Version: 2,
				History: []moc.HistoryEntry{{
					ID: "h5", UserID: "3", UserName: "Ana HSE", Action: "Status change to: Rejected",
					Timestamp: ts("2024-01-22T16:30:00Z"), Type: moc.EntryStatusChange,
					Details: "Removing the fire-rated bulkhead breaks fire compartmentation of the main deck.",
				}},
			},
		},
		WorkOrders: []catalog.WorkOrder{
			{ID: "WO-001", Title: "Pressure sensor calibration - Line A", AssignedTo: "Joao Tecnico", DueDate: "2024-05-20", Status: catalog.WorkOrderPending, CreatedAt: ts("2024-05-10T00:00:00Z")},
			{ID: "WO-002", Title: "Visual inspection of flanges and connections", AssignedTo: "Maria Engenheira", DueDate: "2024-05-22", Status: catalog.WorkOrderPending, CreatedAt: ts("2024-05-11T00:00:00Z")},
			{ID: "WO-2024-01", MOCID: "MOC-24-001", Title: "Ball valve actuator replacement", AssignedTo: "Marcos Silva", DueDate: "2024-02-15", Status: catalog.WorkOrderInProgress, CreatedAt: ts("2024-02-01T00:00:00Z")},
		},
		Standards: []catalog.StandardLink{
			{ID: "STD-API-754", Title: "Process Safety Performance Indicators", Code: "API RP 754", URL: "https://www.api.org/oil-and-natural-gas/health-and-safety/process-safety", Category: "standard"},
			{ID: "STD-ISO-31000", Title: "Risk Management Framework", Code: "ISO 31000", URL: "https://www.iso.org/iso-31000-risk-management.html", Category: "standard"},
			{ID: "STD-NR-13", Title: "Pressurized Equipment Compliance", Code: "NR-13", URL: "https://www.gov.br/trabalho-e-emprego/pt-br/acesso-a-informacao/participacao-social/conselhos-e-orgaos-colegiados/comissao-tripartite-partitaria-permanente/normas-regulamentadora/normas-regulamentadoras-vigentes/norma-regulamentadora-no-13-nr-13", Category: "standard"},
		},
	}
}
