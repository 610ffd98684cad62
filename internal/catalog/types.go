package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// FacilityStatus is the operating state of a facility.
type FacilityStatus string

const (
	FacilityActive      FacilityStatus = "active"
	FacilityInactive    FacilityStatus = "inactive"
	FacilityMaintenance FacilityStatus = "maintenance"
)

func parseFacilityStatus(raw FacilityStatus) (FacilityStatus, error) {
	switch s := FacilityStatus(strings.ToLower(strings.TrimSpace(string(raw)))); s {
	case FacilityActive, FacilityInactive, FacilityMaintenance:
		return s, nil
	case "":
		return FacilityActive, nil
	}
	return "", fmt.Errorf("%w: unknown facility status %q", apperr.ErrValidation, raw)
}

// Facility is an operational unit such as an FPSO or fixed platform.
type Facility struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Location string         `json:"location"`
	Type     string         `json:"type"`
	Status   FacilityStatus `json:"status"`
}

// Asset is a tagged piece of equipment installed at a facility.
type Asset struct {
	ID              string `json:"id"`
	FacilityID      string `json:"facility_id"`
	Tag             string `json:"tag"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	LastMaintenance string `json:"last_maintenance,omitempty"`
}

// WorkOrderStatus tracks execution of a work order.
type WorkOrderStatus string

const (
	WorkOrderPending    WorkOrderStatus = "pending"
	WorkOrderInProgress WorkOrderStatus = "in_progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderOverdue    WorkOrderStatus = "overdue"
)

func parseWorkOrderStatus(raw WorkOrderStatus) (WorkOrderStatus, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(raw))), " ", "_")
	switch s := WorkOrderStatus(norm); s {
	case WorkOrderPending, WorkOrderInProgress, WorkOrderCompleted, WorkOrderOverdue:
		return s, nil
	case "":
		return WorkOrderPending, nil
	}
	return "", fmt.Errorf("%w: unknown work order status %q", apperr.ErrValidation, raw)
}

// DueDateLayout is the wire format of WorkOrder.DueDate.
const DueDateLayout = "2006-01-02"

// WorkOrder is field work, optionally raised against an MOC.
type WorkOrder struct {
	ID                string          `json:"id"`
	MOCID             string          `json:"moc_id,omitempty"`
	Title             string          `json:"title"`
	AssignedTo        string          `json:"assigned_to"`
	DueDate           string          `json:"due_date"`
	Status            WorkOrderStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	NotificationEmail string          `json:"notification_email,omitempty"`
}

// Overdue reports whether an open work order is past its due date at now.
func (w WorkOrder) Overdue(now time.Time) bool {
	if w.Status == WorkOrderCompleted {
		return false
	}
	if w.Status == WorkOrderOverdue {
		return true
	}
	due, err := time.Parse(DueDateLayout, w.DueDate)
	if err != nil {
		return false
	}
	return now.UTC().After(due.Add(24 * time.Hour))
}

// StandardLink is a regulatory standard or a useful reference link.
type StandardLink struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}
