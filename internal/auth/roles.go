package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleFacilityManager   Role = "facility_manager"
	RoleProcessEngineer   Role = "process_engineer"
	RoleMaintenanceTech   Role = "maintenance_tech"
	RoleHSECoordinator    Role = "hse_coordinator"
	RoleApprovalCommittee Role = "approval_committee"
)

// Roles lists every role.
var Roles = []Role{
	RoleAdmin,
	RoleFacilityManager,
	RoleProcessEngineer,
	RoleMaintenanceTech,
	RoleHSECoordinator,
	RoleApprovalCommittee,
}

// legacy role codes still found in exported dashboard data
var roleAliases = map[string]Role{
	"gerente_instalacao": RoleFacilityManager,
	"eng_processo":       RoleProcessEngineer,
	"tecnico_manutencao": RoleMaintenanceTech,
	"coord_hse":          RoleHSECoordinator,
	"comite_aprovacao":   RoleApprovalCommittee,
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalises a role name.
func ParseRole(raw string) (Role, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := roleAliases[norm]; ok {
		return alias, nil
	}
	r := Role(norm)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, raw)
	}
	return r, nil
}

// Capability names an action gated by role.
type Capability string

const (
	CapDashboardView    Capability = "dashboard.view"
	CapFacilitiesManage Capability = "facilities.manage"
	CapAssetsManage     Capability = "assets.manage"
	CapMOCsView         Capability = "mocs.view"
	CapMOCsManage       Capability = "mocs.manage"
	CapRiskManage       Capability = "risk.manage"
	CapWorkOrdersManage Capability = "workorders.manage"
	CapStandardsView    Capability = "standards.view"
	CapStandardsManage  Capability = "standards.manage"
	CapUsersManage      Capability = "users.manage"
	CapAuditView        Capability = "audit.view"
)

var mocRoles = []Role{RoleFacilityManager, RoleProcessEngineer, RoleHSECoordinator, RoleApprovalCommittee}

// capabilityTable lists the non-admin roles allowed per capability. Admin is
// handled by Can and never appears here.
var capabilityTable = map[Capability][]Role{
	CapDashboardView:    Roles[1:],
	CapStandardsView:    Roles[1:],
	CapFacilitiesManage: {RoleFacilityManager, RoleProcessEngineer},
	CapAssetsManage:     {RoleFacilityManager, RoleMaintenanceTech},
	CapMOCsView:         mocRoles,
	CapMOCsManage:       mocRoles,
	CapRiskManage:       {RoleProcessEngineer, RoleHSECoordinator},
	CapWorkOrdersManage: {RoleMaintenanceTech, RoleFacilityManager},
	CapStandardsManage:  nil,
	CapUsersManage:      nil,
	CapAuditView:        nil,
}

// Capabilities returns every defined capability, sorted.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(capabilityTable))
	for c := range capabilityTable {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Can reports whether role may perform capability. Admin may do everything,
// including capabilities not listed in the table.
func Can(role Role, capability Capability) bool {
	if role == RoleAdmin {
		return true
	}
	for _, r := range capabilityTable[capability] {
		if r == role {
			return true
		}
	}
	return false
}

// Granted lists the capabilities role holds.
func Granted(role Role) []Capability {
	var out []Capability
	for _, c := range Capabilities() {
		if Can(role, c) {
			out = append(out, c)
		}
	}
	return out
}
