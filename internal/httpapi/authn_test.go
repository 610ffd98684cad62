package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireCapabilityAllowsGrantedRole(t *testing.T) {
	handler := RequireCapability(auth.CapRiskManage)(okHandler())

	req := httptest.NewRequest(http.MethodPut, "/v1/mocs/MOC-1/risk", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), auth.User{ID: "2", Role: auth.RoleProcessEngineer, Active: true}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireCapabilityRejectsOtherRole(t *testing.T) {
	handler := RequireCapability(auth.CapRiskManage)(okHandler())

	req := httptest.NewRequest(http.MethodPut, "/v1/mocs/MOC-1/risk", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), auth.User{ID: "5", Role: auth.RoleMaintenanceTech, Active: true}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); !strings.Contains(got, "insufficient_scope") {
		t.Fatalf("expected insufficient_scope challenge, got %q", got)
	}
}

func TestRequireCapabilityRejectsMissingUser(t *testing.T) {
	handler := RequireCapability(auth.CapDashboardView)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "", wantErr: true},
		{header: "Basic dXNlcjpwdw==", wantErr: true},
		{header: "Bearer ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.header)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.header, got, err)
		}
	}
}

func TestEventStreamAcceptsQueryToken(t *testing.T) {
	c := newTestAPI(t)
	token := c.login(hseEmail).Token

	c.svc.Events.Notify(notify.Notification{Title: "MOC approved", Message: "MOC-24-002", Type: notify.LevelSuccess})

	resp := c.get("/v1/events", url.Values{"replay": {"1"}}, "")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/events?"+url.Values{"access_token": {token}, "replay": {"1"}}.Encode(), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err = c.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, `"title":"MOC approved"`) {
				t.Fatalf("unexpected event payload %q", line)
			}
			return
		}
	}
	t.Fatalf("stream ended without replayed event: %v", sc.Err())
}
