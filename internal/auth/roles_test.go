package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

func TestAdminCanDoEverything(t *testing.T) {
	for _, c := range Capabilities() {
		require.True(t, Can(RoleAdmin, c), "admin denied %s", c)
	}
	require.True(t, Can(RoleAdmin, Capability("reports.future")))
}

func TestCapabilityTable(t *testing.T) {
	cases := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleMaintenanceTech, CapDashboardView, true},
		{RoleApprovalCommittee, CapStandardsView, true},
		{RoleProcessEngineer, CapFacilitiesManage, true},
		{RoleMaintenanceTech, CapFacilitiesManage, false},
		{RoleMaintenanceTech, CapAssetsManage, true},
		{RoleHSECoordinator, CapAssetsManage, false},
		{RoleApprovalCommittee, CapMOCsManage, true},
		{RoleMaintenanceTech, CapMOCsView, false},
		{RoleHSECoordinator, CapRiskManage, true},
		{RoleFacilityManager, CapRiskManage, false},
		{RoleFacilityManager, CapWorkOrdersManage, true},
		{RoleProcessEngineer, CapWorkOrdersManage, false},
		{RoleFacilityManager, CapStandardsManage, false},
		{RoleFacilityManager, CapUsersManage, false},
		{RoleHSECoordinator, CapAuditView, false},
		{Role("guest"), CapDashboardView, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.cap); got != tc.want {
			t.Fatalf("Can(%s, %s) = %v, want %v", tc.role, tc.cap, got, tc.want)
		}
	}
}

func TestGranted(t *testing.T) {
	require.Len(t, Granted(RoleAdmin), len(Capabilities()))
	require.Equal(t, []Capability{CapAssetsManage, CapDashboardView, CapStandardsView, CapWorkOrdersManage}, Granted(RoleMaintenanceTech))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("ENG_PROCESSO")
	require.NoError(t, err)
	require.Equal(t, RoleProcessEngineer, r)
	r, err = ParseRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, r)
	_, err = ParseRole("operator")
	require.ErrorIs(t, err, apperr.ErrValidation)
}
