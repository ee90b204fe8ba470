package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/dispatch"
	"github.com/KevinKickass/dcscontrol/internal/interfaces"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLM struct {
	dir *dcs.Directory
}

func (f *fakeLM) Config() *config.Config    { return &config.Config{} }
func (f *fakeLM) Directory() *dcs.Directory { return f.dir }
func (f *fakeLM) Shutdown(context.Context) error {
	return nil
}
func (f *fakeLM) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "running", Profiles: f.dir.Len()}
}

type fakeEngine struct {
	mu     sync.Mutex
	reqs   []dispatch.Request
	result types.Result
}

func (e *fakeEngine) Render(server, command string, args []string, _ *types.Device) (string, types.Result) {
	s := command + " " + strings.Join(args, " ")
	res := types.NewResult(types.Success, "")
	res.Command = s
	return s, res
}

func (e *fakeEngine) Dispatch(_ context.Context, req dispatch.Request) types.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return e.result
}

func (e *fakeEngine) requests() []dispatch.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]dispatch.Request(nil), e.reqs...)
}

type fakeDevices map[string]*types.Device

func (f fakeDevices) DeviceByUniqueID(_ context.Context, uniqueID string) (*types.Device, error) {
	for _, d := range f {
		if d.UniqueID == uniqueID {
			return d, nil
		}
	}
	return nil, types.ErrDeviceNotFound
}

func (f fakeDevices) DeviceByID(_ context.Context, accountID, deviceID string) (*types.Device, error) {
	if d, ok := f[accountID+"/"+deviceID]; ok {
		return d, nil
	}
	return nil, types.ErrDeviceNotFound
}

func (f fakeDevices) ListAuditRecords(_ context.Context, accountID, deviceID string, limit int) ([]types.AuditRecord, error) {
	d, ok := f[accountID+"/"+deviceID]
	if !ok {
		return []types.AuditRecord{}, nil
	}
	recs := make([]types.AuditRecord, 0, limit)
	for i := 0; i < min(limit, d.TotalPingCount); i++ {
		recs = append(recs, types.AuditRecord{AccountID: accountID, DeviceID: deviceID, Command: "ping", ResultCode: "OK000"})
	}
	return recs, nil
}

func (f fakeDevices) ResetPingCount(_ context.Context, accountID, deviceID string) error {
	d, ok := f[accountID+"/"+deviceID]
	if !ok {
		return types.ErrDeviceNotFound
	}
	d.TotalPingCount = 0
	return nil
}

func testDirectory(t *testing.T) *dcs.Directory {
	t.Helper()
	mods := dcs.NewModules()
	mods.Register("acme", nil)
	dir := dcs.NewDirectory(mods, zap.NewNop())

	acme := dcs.NewServerProfile("acme", nil)
	acme.UniqueIDPrefixes = []string{"acme_"}
	acme.TCPPorts = dcs.PortSet{{Port: 31000}}
	for _, spec := range []dcs.CommandSpec{
		{Name: "ping", String: "PING ${interval}"},
		{Name: "locate", String: "LOC", Access: "read"},
	} {
		cmd, err := dcs.NewCommand(spec, "dcs.acme.commands", types.AccessWrite)
		require.NoError(t, err)
		acme.Commands.Add(cmd)
	}
	dir.Add(acme)
	dir.Add(dcs.NewServerProfile("beta", nil))
	return dir
}

type harness struct {
	handler http.Handler
	engine  *fakeEngine
	devices fakeDevices
}

func newHarness(t *testing.T, authSvc *auth.Service) *harness {
	t.Helper()
	engine := &fakeEngine{result: types.NewResult(types.Success, "")}
	devices := fakeDevices{
		"acct/dev1": {Account: types.Account{ID: "acct"}, ID: "dev1", UniqueID: "acme_123", TotalPingCount: 3},
	}
	s := NewServer(&config.Config{}, &fakeLM{dir: testDirectory(t)}, Deps{
		Engine:  engine,
		Devices: devices,
		Auth:    authSvc,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("dcs_dispatch_total 0\n"))
		}),
	}, zap.NewNop())
	return &harness{handler: s.Handler(), engine: engine, devices: devices}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])

	rec, _ = h.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dcs_dispatch_total")
}

func TestListServers(t *testing.T) {
	h := newHarness(t, nil)

	_, body := h.do(t, http.MethodGet, "/api/v1/servers", nil, "")
	assert.EqualValues(t, 2, body["count"])

	_, body = h.do(t, http.MethodGet, "/api/v1/servers?installed=true", nil, "")
	require.EqualValues(t, 1, body["count"])
	first := body["servers"].([]any)[0].(map[string]any)
	assert.Equal(t, "acme", first["name"])
	assert.Equal(t, true, first["installed"])
}

func TestGetServer(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodGet, "/api/v1/servers/acme", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", body["name"])
	assert.EqualValues(t, 2, body["commands"])

	rec, body = h.do(t, http.MethodGet, "/api/v1/servers/acme/ports", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{float64(31000)}, body["tcp"])

	rec, body = h.do(t, http.MethodGet, "/api/v1/servers/acme/commands", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cmds := body["commands"].([]any)
	require.Len(t, cmds, 2)
	assert.Equal(t, "dcs.acme.commands.ping", cmds[0].(map[string]any)["acl"])

	rec, body = h.do(t, http.MethodGet, "/api/v1/servers/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SERVER_404", body["error"].(map[string]any)["code"])
}

func TestDispatchAnonymous(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{
		Server: "acme", Account: "acct", Device: "dev1", Command: "ping", Args: []string{"60"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK000", body["result"])
	assert.Equal(t, true, body["success"])

	reqs := h.engine.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "anonymous", reqs[0].RequestedBy)
	assert.Equal(t, "dev1", reqs[0].Device.ID)
	assert.Equal(t, []string{"60"}, reqs[0].Args)
}

func TestDispatchUnknownDevice(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{
		Server: "acme", Account: "acct", Device: "missing", Command: "ping",
	}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DV001", body["result"])
	assert.Empty(t, h.engine.requests())
}

func TestDispatchResultStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.result = types.NewResult(types.TransmitFail, "connection refused")

	rec, body := h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{Server: "acme", Command: "ping"}, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "TX001", body["result"])
	assert.Equal(t, "connection refused", body["message"])
}

func TestDispatchBadRequest(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/dispatch", map[string]string{"server": "acme"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func authService(t *testing.T) (*auth.Service, *auth.JWTHandler) {
	t.Helper()
	t.Setenv("DCS_TEST_JWT_SECRET", strings.Repeat("s", 40))
	cfg := config.AuthConfig{
		JWTSecretEnv:    "DCS_TEST_JWT_SECRET",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: time.Hour,
	}
	// JWT authentication does not touch the store
	svc := auth.NewService(nil, cfg, zap.NewNop())
	return svc, auth.NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func TestDispatchEnforcesCommandACL(t *testing.T) {
	svc, jwtH := authService(t)
	h := newHarness(t, svc)

	viewer, err := jwtH.GenerateAccessToken(uuid.New(), "vera", auth.RoleViewer, nil)
	require.NoError(t, err)
	operator, err := jwtH.GenerateAccessToken(uuid.New(), "otto", auth.RoleOperator, nil)
	require.NoError(t, err)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{Server: "acme", Command: "ping"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{Server: "acme", Command: "ping"}, viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AU001", body["result"])
	assert.Empty(t, h.engine.requests())

	// locate only requires read access
	rec, _ = h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{Server: "acme", Command: "locate"}, viewer)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/dispatch", DispatchRequest{Server: "acme", Command: "ping"}, operator)
	assert.Equal(t, http.StatusOK, rec.Code)

	reqs := h.engine.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "otto", reqs[1].RequestedBy)
}

func TestAPIKeyRoutesRequireAdmin(t *testing.T) {
	svc, jwtH := authService(t)
	h := newHarness(t, svc)

	operator, err := jwtH.GenerateAccessToken(uuid.New(), "otto", auth.RoleOperator, nil)
	require.NoError(t, err)

	rec, _ := h.do(t, http.MethodGet, "/api/v1/api-keys", nil, operator)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := h.do(t, http.MethodGet, "/api/v1/auth/me", nil, operator)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "otto", body["principal"].(map[string]any)["subject"])
}

func TestRenderCommand(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodPost, "/api/v1/servers/acme/commands/ping/render", RenderRequest{Args: []string{"30"}}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping 30", body["command_string"])
	assert.Empty(t, h.engine.requests())
}

func TestLookupDevice(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodGet, "/api/v1/devices/lookup?id=123", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", body["server"])
	assert.Equal(t, "dev1", body["device"].(map[string]any)["device_id"])

	rec, _ = h.do(t, http.MethodGet, "/api/v1/devices/lookup?id=999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/devices/lookup", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceAudit(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodGet, "/api/v1/devices/acct/dev1/audit", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["count"])

	_, body = h.do(t, http.MethodGet, "/api/v1/devices/acct/dev1/audit?limit=2", nil, "")
	assert.EqualValues(t, 2, body["count"])

	rec, _ = h.do(t, http.MethodGet, "/api/v1/devices/acct/dev1/audit?limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPingCount(t *testing.T) {
	svc, jwtH := authService(t)
	h := newHarness(t, svc)

	viewer, err := jwtH.GenerateAccessToken(uuid.New(), "vera", auth.RoleViewer, nil)
	require.NoError(t, err)
	operator, err := jwtH.GenerateAccessToken(uuid.New(), "otto", auth.RoleOperator, nil)
	require.NoError(t, err)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/devices/acct/dev1/ping-count/reset", nil, viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 3, h.devices["acct/dev1"].TotalPingCount)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/devices/acct/dev1/ping-count/reset", nil, operator)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.devices["acct/dev1"].TotalPingCount)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/devices/acct/nope/ping-count/reset", nil, operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(t, http.MethodGet, "/api/v1/system/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["state"])
	assert.EqualValues(t, 2, body["profiles"])
}
