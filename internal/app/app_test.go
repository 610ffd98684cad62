package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/catalog"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/config"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.Secret = "app-test-secret-123456"
	return cfg
}

func TestInMemoryAppServesDemoData(t *testing.T) {
	a, err := New(context.Background(), testConfig(), "test", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", strings.NewReader(`{"email":"admin@moctudio.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/mocs", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	list, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)
	var body struct {
		Items []moc.Request `json:"items"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&body))
	require.Len(t, body.Items, 4)

	logins, err := a.Services().Audit.All(context.Background(), audit.Query{Action: audit.ActionLogin})
	require.NoError(t, err)
	require.Len(t, logins, 1)
}

func TestStrictPolicyIsWired(t *testing.T) {
	cfg := testConfig()
	cfg.MOC.TransitionPolicy = "strict"
	a, err := New(context.Background(), cfg, "test", nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	svc := a.Services()
	require.Equal(t, "strict", svc.MOCs.Policy().Name())

	admin := audit.Actor{UserID: "1", UserName: "Admin User", Role: "admin"}
	_, err = svc.MOCs.Transition(context.Background(), "MOC-24-001", moc.StatusImplemented, admin, "", 0)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = svc.Catalog.CreateWorkOrder(context.Background(), catalogWorkOrder("MOC-24-002"), admin)
	require.NoError(t, err)
	hist, err := svc.MOCs.History(context.Background(), "MOC-24-002")
	require.NoError(t, err)
	require.Equal(t, moc.EntryWorkOrder, hist[len(hist)-1].Type)
}

func TestWithoutDemoDataStartsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.SeedDemo = false
	a, err := New(context.Background(), cfg, "test", nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	list, err := a.Services().MOCs.List(context.Background(), moc.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRejectsBadSettings(t *testing.T) {
	cfg := testConfig()
	cfg.MOC.TransitionPolicy = "anything-goes"
	_, err := New(context.Background(), cfg, "test", nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	cfg = testConfig()
	cfg.Auth.Secret = "short"
	_, err = New(context.Background(), cfg, "test", nil)
	require.Error(t, err)
}

func catalogWorkOrder(mocID string) catalog.WorkOrder {
	return catalog.WorkOrder{Title: "Stroke test SDV-501", AssignedTo: "Joao Tecnico", DueDate: "2024-03-01", MOCID: mocID}
}
