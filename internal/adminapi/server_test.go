package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(&gateway.SteppedClock{}, 10)
	_, ids := gw.Syscall(kerntypes.SupervisorPid, kerntypes.Syscall{Num: kerntypes.SysRegisterProcess, Data: []byte("init")})
	require.Len(t, ids, 1)
	return New(gw, nil, telemetry.New()), gw
}

func TestHandleProcessesListsRegisteredProcesses(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/processes", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var procs []kerntypes.ProcessInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &procs))
	require.Len(t, procs, 1)
	assert.Equal(t, "init", procs[0].Name)
}

func TestHandleCommitsFromOffset(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/commits?from=1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var commits []kerntypes.Commit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commits))
	assert.Len(t, commits, 1) // genesis (seq 0) + ProcessCreated (seq 1), from=1 skips genesis
}

func TestHandleCapInfoNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/cap/1/99", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleIntegrityReportsOk(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/integrity", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["ok"])
}

func TestHandleMetricsServesPrometheusExposition(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamUnavailableWithoutAuditBus(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
