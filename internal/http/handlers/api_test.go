package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/metrics"
	"github.com/hongminglow/svcmon/internal/middleware"
	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/monitor"
	"github.com/hongminglow/svcmon/internal/storage/sqlite"
	"github.com/hongminglow/svcmon/internal/storage/sqlstore"
	"github.com/hongminglow/svcmon/internal/systemd"
)

// fakeUnits is an in-memory ServiceController.
type fakeUnits struct {
	mu       sync.Mutex
	units    []string
	statuses map[string]models.ServiceInfo
	controls []string
	logs     map[string]systemd.LogResult
	logsErr  error
}

func newFakeUnits(units ...string) *fakeUnits {
	return &fakeUnits{units: units, statuses: map[string]models.ServiceInfo{}, logs: map[string]systemd.LogResult{}}
}

func (f *fakeUnits) ScanUnits() ([]string, error) {
	return slices.Clone(f.units), nil
}

func (f *fakeUnits) Status(_ context.Context, name string) models.ServiceInfo {
	if info, ok := f.statuses[name]; ok {
		return info
	}
	if slices.Contains(f.units, name) {
		return models.ServiceInfo{Name: name, Status: "active (running)", Active: "active", Enabled: "enabled", Description: name, Loaded: true}
	}
	return models.ServiceInfo{Name: name, Status: "not-found", Active: "unknown", Enabled: "unknown", Description: "Service not found"}
}

func (f *fakeUnits) Control(_ context.Context, name, action string) (systemd.ControlResult, error) {
	if !systemd.ValidAction(action) {
		return systemd.ControlResult{}, systemd.ErrInvalidAction
	}
	f.mu.Lock()
	f.controls = append(f.controls, action+" "+name)
	f.mu.Unlock()
	if !slices.Contains(f.units, name) {
		return systemd.ControlResult{Message: "Service " + name + " not found"}, nil
	}
	return systemd.ControlResult{Success: true, Message: "", ReturnCode: 0}, nil
}

func (f *fakeUnits) Logs(_ context.Context, name string, lines int) (systemd.LogResult, error) {
	if f.logsErr != nil {
		return systemd.LogResult{}, f.logsErr
	}
	if res, ok := f.logs[name]; ok {
		return res, nil
	}
	return systemd.LogResult{Lines: []string{}, Error: "No journal files were found."}, nil
}

type testAPI struct {
	server    *httptest.Server
	authn     *auth.Authenticator
	store     *sqlstore.Store
	units     *fakeUnits
	monitored *monitor.Store
	metrics   *metrics.Metrics
}

var testSettings = auth.Settings{
	Secret:     []byte("handlers-test-secret"),
	TokenTTL:   7 * 24 * time.Hour,
	Iterations: auth.MinIterations,
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqlite.NewUserStore(ctx, filepath.Join(dir, "users.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	logger := logging.NewNop()
	authn, err := auth.NewAuthenticator(store, testSettings, logger)
	require.NoError(t, err)
	_, err = auth.BootstrapDefaultUsers(ctx, store, authn.Hasher(), []auth.DefaultUser{
		{Username: "admin", Password: "admin123", Role: models.RoleAdmin},
		{Username: "user", Password: "user123", Role: models.RoleUser},
	})
	require.NoError(t, err)

	m := metrics.New()
	guard := middleware.NewGuard(authn, logger, m)
	units := newFakeUnits("cron.service", "nginx.service", "ssh.service")
	monitored := monitor.NewStore(filepath.Join(dir, "monitored_services.json"))

	mux := http.NewServeMux()
	NewHealthHandler(time.Now(), monitored, store, logger).Register(mux)
	NewAuthHandler(authn, guard, m, logger).Register(mux)
	NewServicesHandler(units, monitored, guard, m, logger).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, authn: authn, store: store, units: units, monitored: monitored, metrics: m}
}

func (a *testAPI) login(t *testing.T, username, password string) *http.Response {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := http.Post(a.server.URL+"/auth/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return resp
}

func (a *testAPI) token(t *testing.T, username, password string) string {
	t.Helper()
	resp := a.login(t, username, password)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.AccessToken
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
