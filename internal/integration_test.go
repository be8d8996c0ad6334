package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/availability"
	"laundry-queue-backend/internal/issue"
	"laundry-queue-backend/internal/logging"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/queue"
	"laundry-queue-backend/internal/scraper"
	"laundry-queue-backend/internal/store"
	"laundry-queue-backend/internal/testutil"
)

type system struct {
	store       store.Store
	queues      *queue.Manager
	issues      *issue.Tracker
	coordinator *availability.Coordinator
	mu          sync.Mutex
	events      []model.TurnEvent
	machines    []model.Machine
}

func newSystem(t *testing.T, machines int) *system {
	t.Helper()
	gormDB := testutil.NewDB(t)
	dorm := testutil.SeedDorm(t, gormDB, "North Hall")

	sys := &system{store: store.NewGormStore(gormDB)}
	for i := 1; i <= machines; i++ {
		m := testutil.SeedMachine(t, gormDB, dorm.ID, fmt.Sprintf("Washer %d", i))
		ext := int64(1000 + i)
		require.NoError(t, gormDB.Model(&m).Update("external_id", ext).Error)
		sys.machines = append(sys.machines, m)
	}

	logger := logging.Discard()
	sink := queue.SinkFunc(func(_ context.Context, e model.TurnEvent) error {
		sys.mu.Lock()
		defer sys.mu.Unlock()
		sys.events = append(sys.events, e)
		return nil
	})
	notifier := queue.NewTurnNotifier(sys.store, queue.NewMemoryNotifiedSet(), queue.MultiSink{sink}, nil, logger)
	sys.queues = queue.NewManager(sys.store, notifier, nil, logger)
	sys.issues = issue.NewTracker(sys.store, false, nil, logger)
	sys.coordinator = availability.NewCoordinator(sys.queues, nil, logger)
	return sys
}

func (s *system) turnUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, len(s.events))
	for i, e := range s.events {
		users[i] = e.UserID
	}
	return users
}

func (s *system) order(t *testing.T, machineID int64) []string {
	t.Helper()
	entries, err := s.queues.ListByResource(context.Background(), machineID)
	require.NoError(t, err)
	users := make([]string, len(entries))
	for i, e := range entries {
		require.Equal(t, i+1, e.Position)
		users[i] = e.UserID
	}
	return users
}

func TestScenario_JoinAndLeave(t *testing.T) {
	sys := newSystem(t, 1)
	ctx := context.Background()
	m := sys.machines[0].ID

	for _, u := range []string{"A", "B", "C"} {
		_, err := sys.queues.Enqueue(ctx, m, u)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"A", "B", "C"}, sys.order(t, m))

	_, err := sys.queues.Cancel(ctx, m, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, sys.order(t, m))

	_, err = sys.queues.Cancel(ctx, m, "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, sys.order(t, m))

	assert.Equal(t, []string{"A"}, sys.turnUsers())
}

func TestScenario_MaintenanceEmptiesQueue(t *testing.T) {
	sys := newSystem(t, 1)
	ctx := context.Background()
	m := sys.machines[0].ID

	for _, u := range []string{"A", "B"} {
		_, err := sys.queues.Enqueue(ctx, m, u)
		require.NoError(t, err)
	}
	_, err := sys.coordinator.SetStatus(ctx, m, model.OperationUnderMaintenance)
	require.NoError(t, err)
	assert.Empty(t, sys.order(t, m))

	_, err = sys.coordinator.SetStatus(ctx, m, model.OperationOperational)
	require.NoError(t, err)
	assert.Empty(t, sys.order(t, m))

	// B was never notified before the purge; rejoining makes B the new head.
	_, err = sys.queues.Enqueue(ctx, m, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, sys.turnUsers())
}

func TestScenario_IssueLifecycle(t *testing.T) {
	sys := newSystem(t, 1)
	ctx := context.Background()
	m := sys.machines[0].ID

	report, err := sys.issues.Create(ctx, issue.NewReport{MachineID: m, ReporterID: "A", IssueType: "Door"})
	require.NoError(t, err)
	assert.Equal(t, model.IssueOpen, report.Status)

	report, err = sys.issues.MarkInProgress(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IssueInProgress, report.Status)

	report, err = sys.issues.Resolve(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IssueResolved, report.Status)

	active, err := sys.issues.ActiveIssueForResource(ctx, m)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestScenario_SingleQueueMembershipAcrossMachines(t *testing.T) {
	sys := newSystem(t, 3)
	ctx := context.Background()

	_, err := sys.queues.Enqueue(ctx, sys.machines[0].ID, "A")
	require.NoError(t, err)
	for _, m := range sys.machines {
		_, err := sys.queues.Enqueue(ctx, m.ID, "A")
		assert.True(t, apperr.Is(err, apperr.KindConflict), "machine %d", m.ID)
	}

	require.NoError(t, sys.coordinator.DeleteResource(ctx, sys.machines[0].ID))
	_, err = sys.queues.Enqueue(ctx, sys.machines[1].ID, "A")
	assert.NoError(t, err)
}

func TestProperty_RandomMutationsKeepPositionsContiguous(t *testing.T) {
	sys := newSystem(t, 3)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				user := fmt.Sprintf("u%d", r.Intn(10))
				machine := sys.machines[r.Intn(len(sys.machines))].ID
				var err error
				if r.Intn(3) == 0 {
					_, err = sys.queues.Cancel(ctx, machine, user)
				} else {
					_, err = sys.queues.Enqueue(ctx, machine, user)
				}
				if err != nil {
					kind := apperr.KindOf(err)
					assert.Contains(t, []apperr.Kind{apperr.KindConflict, apperr.KindNotFound}, kind, "%v", err)
				}
			}
		}(rng.Int63())
	}
	wg.Wait()

	seen := make(map[string]int64)
	for _, m := range sys.machines {
		for _, u := range sys.order(t, m.ID) {
			prev, dup := seen[u]
			assert.False(t, dup, "%s queued on %d and %d", u, prev, m.ID)
			seen[u] = m.ID
		}
	}

	heads := make(map[string]int)
	for _, u := range sys.turnUsers() {
		heads[u]++
	}
	for _, m := range sys.machines {
		if order := sys.order(t, m.ID); len(order) > 0 {
			assert.GreaterOrEqual(t, heads[order[0]], 1, "head of machine %d was never notified", m.ID)
		}
	}
}

func TestScenario_FaultyFeedTakesMachineOutOfService(t *testing.T) {
	sys := newSystem(t, 2)
	ctx := context.Background()
	faulty := sys.machines[0]

	for _, u := range []string{"A", "B"} {
		_, err := sys.queues.Enqueue(ctx, faulty.ID, u)
		require.NoError(t, err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"total": 2,
				"items": []scraper.ApiItem{{ID: 1001, State: 9}, {ID: 1002, State: 2}},
			},
		})
	}))
	defer server.Close()

	svc := scraper.NewService(config.ScraperConfig{
		Enabled:             true,
		Interval:            time.Minute,
		Request:             config.ScraperRequest{URL: server.URL, PageSize: 10},
		StateIdleValues:     []int{1},
		StateOccupiedValues: []int{2},
		StateFaultyValues:   []int{9},
	}, sys.store, sys.coordinator, nil, logging.Discard())

	res, err := svc.ScrapeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Escalated)
	assert.Empty(t, sys.order(t, faulty.ID))

	machine, err := sys.store.GetMachine(ctx, faulty.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.OperationUnavailable, machine.OperationStatus)

	other, err := sys.store.GetMachine(ctx, sys.machines[1].ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityOccupied, other.AvailabilityStatus)
}
