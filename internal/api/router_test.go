package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/availability"
	"laundry-queue-backend/internal/issue"
	"laundry-queue-backend/internal/logging"
	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/queue"
	"laundry-queue-backend/internal/store"
	"laundry-queue-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

type testServer struct {
	router  *gin.Engine
	machine model.Machine
	dorm    model.Dorm
}

func newTestServer(t *testing.T, vapid *webpush.Options) *testServer {
	t.Helper()
	gormDB := testutil.NewDB(t)
	dorm := testutil.SeedDorm(t, gormDB, "North Hall")
	machine := testutil.SeedMachine(t, gormDB, dorm.ID, "Washer 1")

	s := store.NewGormStore(gormDB)
	m := metrics.New()
	logger := logging.Discard()
	notifier := queue.NewTurnNotifier(s, nil, nil, m, logger)
	queues := queue.NewManager(s, notifier, m, logger)
	handler := NewHandler(
		s,
		queues,
		issue.NewTracker(s, false, m, logger),
		availability.NewCoordinator(queues, m, logger),
		vapid,
		logger,
	)
	cfg := config.ServerConfig{RequesterHeader: "X-User-ID", RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60}
	return &testServer{router: NewRouter(handler, cfg, m), machine: machine, dorm: dorm}
}

func (ts *testServer) call(t *testing.T, method, path, user string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	require.Nil(t, env.Error)
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestQueueEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	queuePath := "/api/machines/" + itoa(ts.machine.ID) + "/queue"

	for i, user := range []string{"A", "B", "C"} {
		code, env := ts.call(t, http.MethodPost, queuePath, user, nil)
		require.Equal(t, http.StatusCreated, code)
		entry := decode[model.QueueEntry](t, env)
		assert.Equal(t, i+1, entry.Position)
	}

	code, env := ts.call(t, http.MethodPost, queuePath, "A", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "null", string(env.Data))
	require.NotNil(t, env.Error)
	assert.Equal(t, "conflict", env.Error.Kind)
	assert.False(t, env.Error.Retryable)

	code, env = ts.call(t, http.MethodDelete, queuePath, "B", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, decode[leaveQueueResponse](t, env).RemovedPosition)

	code, env = ts.call(t, http.MethodDelete, queuePath, "B", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Kind)

	_, env = ts.call(t, http.MethodGet, queuePath, "", nil)
	entries := decode[[]model.QueueEntry](t, env)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, "C", entries[1].UserID)
	assert.Equal(t, 2, entries[1].Position)

	_, env = ts.call(t, http.MethodGet, "/api/queues?machine_ids="+itoa(ts.machine.ID)+",999", "", nil)
	assert.Len(t, decode[[]model.QueueEntry](t, env), 2)
}

func TestQueueEndpoints_Validation(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.call(t, http.MethodPost, "/api/machines/"+itoa(ts.machine.ID)+"/queue", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Kind)

	code, _ = ts.call(t, http.MethodGet, "/api/machines/abc/queue", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.call(t, http.MethodGet, "/api/queues", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusEndpoint_PurgesQueue(t *testing.T) {
	ts := newTestServer(t, nil)
	id := itoa(ts.machine.ID)

	for _, user := range []string{"A", "B"} {
		code, _ := ts.call(t, http.MethodPost, "/api/machines/"+id+"/queue", user, nil)
		require.Equal(t, http.StatusCreated, code)
	}

	code, env := ts.call(t, http.MethodPut, "/api/machines/"+id+"/status", "", gin.H{"status": "under_maintenance"})
	require.Equal(t, http.StatusOK, code)
	change := decode[availability.StatusChange](t, env)
	assert.Equal(t, 2, change.Purged)

	_, env = ts.call(t, http.MethodGet, "/api/machines/"+id+"/queue", "", nil)
	assert.Empty(t, decode[[]model.QueueEntry](t, env))

	code, env = ts.call(t, http.MethodPost, "/api/machines/"+id+"/queue", "A", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "resource_unavailable", env.Error.Kind)

	code, env = ts.call(t, http.MethodPut, "/api/machines/"+id+"/status", "", gin.H{"status": "exploded"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Kind)
}

func TestIssueEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	id := itoa(ts.machine.ID)

	code, env := ts.call(t, http.MethodPost, "/api/machines/"+id+"/issues", "A", gin.H{"description": "leaking"})
	require.Equal(t, http.StatusCreated, code)
	report := decode[model.IssueReport](t, env)
	assert.Equal(t, model.IssueOpen, report.Status)
	assert.Equal(t, model.DefaultIssueType, report.IssueType)

	_, env = ts.call(t, http.MethodGet, "/api/machines/"+id+"/issues/active", "", nil)
	active := decode[activeIssueResponse](t, env)
	require.NotNil(t, active.Issue)
	assert.Equal(t, report.ID, active.Issue.ID)

	code, env = ts.call(t, http.MethodPost, "/api/issues/"+report.ID+"/in-progress", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.IssueInProgress, decode[model.IssueReport](t, env).Status)

	code, env = ts.call(t, http.MethodPost, "/api/issues/"+report.ID+"/resolve", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.IssueResolved, decode[model.IssueReport](t, env).Status)

	code, env = ts.call(t, http.MethodPost, "/api/issues/"+report.ID+"/resolve", "", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", env.Error.Kind)

	_, env = ts.call(t, http.MethodGet, "/api/machines/"+id+"/issues/active", "", nil)
	assert.Nil(t, decode[activeIssueResponse](t, env).Issue)

	_, env = ts.call(t, http.MethodGet, "/api/machines/"+id+"/issues", "", nil)
	assert.Len(t, decode[[]model.IssueReport](t, env), 1)

	code, _ = ts.call(t, http.MethodPost, "/api/issues/missing/resolve", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRegistryEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.call(t, http.MethodPost, "/api/dorms", "", gin.H{"name": "  South Hall "})
	require.Equal(t, http.StatusCreated, code)
	dorm := decode[model.Dorm](t, env)
	assert.Equal(t, "South Hall", dorm.Name)

	code, _ = ts.call(t, http.MethodPost, "/api/dorms", "", gin.H{"name": " "})
	assert.Equal(t, http.StatusBadRequest, code)

	dormPath := "/api/dorms/" + itoa(dorm.ID) + "/machines"
	code, env = ts.call(t, http.MethodPost, dormPath, "", gin.H{"name": "South 2#3-1", "location": "Laundry room"})
	require.Equal(t, http.StatusCreated, code)
	machine := decode[model.Machine](t, env)
	assert.Equal(t, 3, machine.Floor)
	assert.Equal(t, 1, machine.Seq)
	assert.Equal(t, model.OperationOperational, machine.OperationStatus)
	assert.Equal(t, model.AvailabilityFree, machine.AvailabilityStatus)

	_, env = ts.call(t, http.MethodGet, dormPath, "", nil)
	rows := decode[[]machineRow](t, env)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].QueueLength)
	assert.Nil(t, rows[0].ActiveIssue)

	// Mutations flush the cached listing.
	code, _ = ts.call(t, http.MethodPost, "/api/machines/"+itoa(machine.ID)+"/queue", "A", nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = ts.call(t, http.MethodPost, "/api/machines/"+itoa(machine.ID)+"/issues", "A", gin.H{"issueType": "Door"})
	require.Equal(t, http.StatusCreated, code)

	_, env = ts.call(t, http.MethodGet, dormPath, "", nil)
	rows = decode[[]machineRow](t, env)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].QueueLength)
	require.NotNil(t, rows[0].ActiveIssue)
	assert.Equal(t, "Door", rows[0].ActiveIssue.IssueType)

	floor := 7
	code, env = ts.call(t, http.MethodPut, "/api/machines/"+itoa(machine.ID), "", gin.H{"name": "Renamed", "floor": floor})
	require.Equal(t, http.StatusOK, code)
	updated := decode[model.Machine](t, env)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 7, updated.Floor)

	_, env = ts.call(t, http.MethodGet, "/api/dorms", "", nil)
	dorms := decode[[]store.DormSummary](t, env)
	require.Len(t, dorms, 2)

	code, _ = ts.call(t, http.MethodDelete, "/api/machines/"+itoa(machine.ID), "", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = ts.call(t, http.MethodDelete, "/api/machines/"+itoa(machine.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.call(t, http.MethodGet, "/api/dorms/999/machines", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSubscriptionEndpoints(t *testing.T) {
	ts := newTestServer(t, &webpush.Options{VAPIDPublicKey: "pub-key"})
	sub := gin.H{"endpoint": "https://push.example/1", "p256dh": "key", "auth": "secret"}

	code, _ := ts.call(t, http.MethodPut, "/api/subscriptions", "A", gin.H{"endpoint": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.call(t, http.MethodPut, "/api/subscriptions", "A", sub)
	require.Equal(t, http.StatusCreated, code)

	code, env := ts.call(t, http.MethodPut, "/api/subscriptions", "B", sub)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Error.Kind)

	_, env = ts.call(t, http.MethodGet, "/api/subscriptions", "A", nil)
	assert.Equal(t, []subscriptionResponse{{Endpoint: "https://push.example/1"}}, decode[[]subscriptionResponse](t, env))
	_, env = ts.call(t, http.MethodGet, "/api/subscriptions", "B", nil)
	assert.Empty(t, decode[[]subscriptionResponse](t, env))

	code, _ = ts.call(t, http.MethodDelete, "/api/subscriptions", "B", gin.H{"endpoint": "https://push.example/1"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.call(t, http.MethodDelete, "/api/subscriptions", "A", gin.H{"endpoint": "https://push.example/1"})
	assert.Equal(t, http.StatusOK, code)

	_, env = ts.call(t, http.MethodGet, "/api/subscriptions", "A", nil)
	assert.Empty(t, decode[[]subscriptionResponse](t, env))

	_, env = ts.call(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, "pub-key", decode[vapidResponse](t, env).PublicKey)
}

func TestVAPIDKeyNotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	code, env := ts.call(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.call(t, http.MethodPost, "/api/machines/"+itoa(ts.machine.ID)+"/queue", "A", nil)

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "laundry_queue_operations_total")
}
