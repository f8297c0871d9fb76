package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkns/internal/ledger"
	"zkns/internal/platform/metrics"
	"zkns/internal/platform/middleware"
	"zkns/internal/proof"
	"zkns/internal/registry/actionlog"
	"zkns/internal/registry/handler"
	"zkns/internal/registry/service"
	"zkns/internal/registry/state"
	"zkns/internal/settlement"
	"zkns/internal/settlement/events"
)

const (
	adminKey   = "B62qAdmin"
	adminToken = "test-admin-token"
)

type fixture struct {
	router  chi.Router
	machine *settlement.Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	log := actionlog.NewMemory()
	st := state.New(log, state.Genesis{Admin: adminKey, Premium: 1})
	backend := proof.NewFake()
	require.NoError(t, backend.Compile(context.Background()))
	machine := settlement.New(settlement.Config{
		Log:        log,
		State:      st,
		Backend:    backend,
		Ledger:     ledger.NewMemory(st.Commitment(), backend),
		Events:     events.Noop{},
		Metrics:    metrics.NewWith(prometheus.NewRegistry()),
		Logger:     logger,
		BatchLimit: 16,
	})
	svc := service.New(st, nil, nil, nil, logger, metrics.NewWith(prometheus.NewRegistry()))
	h := handler.New(svc, st, log, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.CallerKey)
	r.Group(h.Register)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	return &fixture{router: r, machine: machine}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	_, err := f.machine.Settle(context.Background())
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set("X-Caller-Key", caller)
	}
	if caller == adminKey {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRegisterThenResolve(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{
		"name":    "alice.org",
		"payload": "alice.example.com",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Not resolvable until a settlement lands.
	rec = f.do(t, http.MethodGet, "/names/alice.org", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.settle(t)

	rec = f.do(t, http.MethodGet, "/names/alice.org", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "B62qAlice", body["owner"])
	assert.Equal(t, "alice.example.com", body["payload"])
}

func TestRegisterRequiresCallerKey(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/names", "", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "bad_request", body["error"])
}

func TestRegisterTakenNameConflicts(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{"name": "taken"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t)

	rec = f.do(t, http.MethodPost, "/names", "B62qBob", map[string]string{"name": "taken"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "already_registered", body["error"])
}

func TestRegisterRejectsBadName(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{
		"name": "way-too-long-name-that-overflows-the-packed-field",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "encoding", body["error"])
}

func TestTransferGuards(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{"name": "site"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Still pending: the settled view has no record yet.
	rec = f.do(t, http.MethodPost, "/names/site/transfer", "B62qAlice", map[string]string{"new_owner": "B62qBob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.settle(t)

	rec = f.do(t, http.MethodPost, "/names/site/transfer", "B62qEve", map[string]string{"new_owner": "B62qEve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/names/site/transfer", "B62qAlice", map[string]string{"new_owner": "B62qBob"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t)

	rec = f.do(t, http.MethodGet, "/names/site", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "B62qBob", body["owner"])
}

func TestSetRecordPreservesOwner(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{"name": "blog", "payload": "v1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t)

	rec = f.do(t, http.MethodPut, "/names/blog/record", "B62qAlice", map[string]string{"payload": "v2", "aux": "mirror"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t)

	rec = f.do(t, http.MethodGet, "/names/blog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "B62qAlice", body["owner"])
	assert.Equal(t, "v2", body["payload"])
	assert.Equal(t, "mirror", body["aux"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/admin/premium", bytes.NewBufferString(`{"premium":5}`))
	req.Header.Set("X-Caller-Key", adminKey)
	req.Header.Set("X-Admin-Token", "wrong")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminPremiumAndPause(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/admin/premium", adminKey, map[string]uint64{"premium": 5})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(t, http.MethodPost, "/admin/pause", adminKey, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t)

	rec = f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{"name": "latecomer"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "paused", body["error"])

	status := decodeBody[map[string]any](t, f.do(t, http.MethodGet, "/status", "", nil))
	assert.Equal(t, true, status["paused"])
	assert.Equal(t, float64(5), status["premium"])
}

func TestAdminRoutesRejectNonAdminCaller(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/pause", nil)
	req.Header.Set("X-Caller-Key", "B62qEve")
	req.Header.Set("X-Admin-Token", adminToken)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusReflectsSettlement(t *testing.T) {
	f := newFixture(t)

	status := decodeBody[map[string]any](t, f.do(t, http.MethodGet, "/status", "", nil))
	assert.Equal(t, float64(0), status["cursor"])
	assert.Equal(t, float64(0), status["pending_actions"])
	assert.Equal(t, adminKey, status["admin"])

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/names", "B62qAlice", map[string]string{"name": fmt.Sprintf("name%d", i)})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	status = decodeBody[map[string]any](t, f.do(t, http.MethodGet, "/status", "", nil))
	assert.Equal(t, float64(3), status["pending_actions"])

	f.settle(t)

	status = decodeBody[map[string]any](t, f.do(t, http.MethodGet, "/status", "", nil))
	assert.Equal(t, float64(3), status["cursor"])
	assert.Equal(t, float64(0), status["pending_actions"])
}
