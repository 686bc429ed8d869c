package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/ctf-relay/internal/adapter/metrics"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

type fakeStatus struct {
	st  domain.IngestStatus
	err error
}

func (f fakeStatus) Status(ctx context.Context) (domain.IngestStatus, error) {
	return f.st, f.err
}

func newTestRouter(t *testing.T, status fakeStatus) (http.Handler, *metrics.ForwardMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewForwardMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdminRouter(status, reg, logger), m
}

func TestAdminRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, fakeStatus{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAdminRouter_Status(t *testing.T) {
	router, _ := newTestRouter(t, fakeStatus{st: domain.IngestStatus{Received: 10, Written: 8, Pending: 2}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.IngestStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, domain.IngestStatus{Received: 10, Written: 8, Pending: 2}, got)
}

func TestAdminRouter_StatusError(t *testing.T) {
	router, _ := newTestRouter(t, fakeStatus{err: errors.New("backend down")})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAdminRouter_Metrics(t *testing.T) {
	router, m := newTestRouter(t, fakeStatus{})
	m.Packet()
	m.Event()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "ctf_relay_forward_packets_total 1"), body)
	assert.True(t, strings.Contains(body, "ctf_relay_forward_events_total 1"), body)
}

func TestAdminRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t, fakeStatus{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
