package settlementd

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vibestream/core/types"
)

const testToken = "test-token"

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := Config{
		ListenAddress: ":0",
		DatabasePath:  filepath.Join(t.TempDir(), "settlement.db"),
		Operator:      "0x0101010101010101010101010101010101010101",
		AutoSettle:    AutoSettleCfg{Timeout: Duration{Duration: 24 * time.Hour}},
		Admin:         AdminConfig{BearerToken: testToken},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func seedStream(t *testing.T, svc *Service) {
	t.Helper()
	operator := addr(0x01)
	creator := addr(0x02)
	donor := addr(0x03)
	_, err := svc.Engine().Initialize(operator, 5, addr(0x04))
	require.NoError(t, err)
	_, err = svc.Engine().StartStream(creator, "live-1", 40, 50, 60)
	require.NoError(t, err)
	require.NoError(t, svc.State().PutAccount(donor[:], &types.Account{Balance: big.NewInt(1_000)}))
	_, err = svc.Engine().Donate(donor, "live-1", big.NewInt(250))
	require.NoError(t, err)
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminHealthzUnauthenticated(t *testing.T) {
	server := NewAdminServer(newTestService(t), testToken)
	rec := doRequest(t, server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminMetricsUnauthenticated(t *testing.T) {
	server := NewAdminServer(newTestService(t), testToken)
	rec := doRequest(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRejectsMissingOrWrongToken(t *testing.T) {
	server := NewAdminServer(newTestService(t), testToken)
	rec := doRequest(t, server, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doRequest(t, server, http.MethodGet, "/status", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminStatus(t *testing.T) {
	svc := newTestService(t)
	seedStream(t, svc)
	server := NewAdminServer(svc, testToken)

	rec := doRequest(t, server, http.MethodGet, "/status", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Paused)
	require.Equal(t, uint64(1), status.Streams)
	require.NotEmpty(t, status.RunID)
}

func TestAdminPauseResume(t *testing.T) {
	svc := newTestService(t)
	server := NewAdminServer(svc, testToken)

	rec := doRequest(t, server, http.MethodPost, "/admin/pause", testToken)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, svc.Paused())

	_, err := svc.AutoSettleStream("live-1")
	require.Error(t, err)

	rec = doRequest(t, server, http.MethodPost, "/admin/resume", testToken)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, svc.Paused())
}

func TestAdminStreamLookup(t *testing.T) {
	svc := newTestService(t)
	seedStream(t, svc)
	server := NewAdminServer(svc, testToken)

	rec := doRequest(t, server, http.MethodGet, "/v1/streams/live-1", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var view streamView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "live-1", view.ID)
	require.True(t, view.Active)
	require.Equal(t, "250", view.TotalDonations)
	require.Equal(t, "0x0202020202020202020202020202020202020202", view.Creator)

	rec = doRequest(t, server, http.MethodGet, "/v1/streams/missing", testToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDonationsLookup(t *testing.T) {
	svc := newTestService(t)
	seedStream(t, svc)
	server := NewAdminServer(svc, testToken)

	rec := doRequest(t, server, http.MethodGet, "/v1/streams/live-1/donations", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []donationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "250", views[0].Amount)
	require.Equal(t, "0x0303030303030303030303030303030303030303", views[0].Donor)
}

func TestAdminRewardLookupNotFound(t *testing.T) {
	svc := newTestService(t)
	seedStream(t, svc)
	server := NewAdminServer(svc, testToken)

	rec := doRequest(t, server, http.MethodGet, "/v1/streams/live-1/rewards/0x0505050505050505050505050505050505050505", testToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/v1/streams/live-1/rewards/not-an-address", testToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDisputeLookupNotFound(t *testing.T) {
	svc := newTestService(t)
	seedStream(t, svc)
	server := NewAdminServer(svc, testToken)

	rec := doRequest(t, server, http.MethodGet, "/v1/streams/live-1/disputes/0x0505050505050505050505050505050505050505", testToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
