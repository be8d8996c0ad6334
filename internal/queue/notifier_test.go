package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-queue-backend/internal/logging"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/testutil"
)

func TestTurnNotifier_EmitsOncePerEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.manager.Enqueue(ctx, f.machine.ID, "A")
	require.NoError(t, err)
	_, err = f.manager.Enqueue(ctx, f.machine.ID, "B")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		event, err := f.manager.notifier.Recompute(ctx, f.machine.ID)
		require.NoError(t, err)
		assert.Nil(t, event)
	}

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, a.ID, events[0].EntryID)
	assert.Equal(t, "A", events[0].UserID)
	assert.Equal(t, f.machine.ID, events[0].MachineID)
	assert.Equal(t, "Washer 1", events[0].MachineName)

	var stored model.QueueEntry
	require.NoError(t, f.db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, model.EntryNotified, stored.Status)
}

func TestTurnNotifier_NextInLineAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, user := range []string{"A", "B", "C"} {
		_, err := f.manager.Enqueue(ctx, f.machine.ID, user)
		require.NoError(t, err)
	}
	_, err := f.manager.Cancel(ctx, f.machine.ID, "C")
	require.NoError(t, err)
	_, err = f.manager.Cancel(ctx, f.machine.ID, "A")
	require.NoError(t, err)

	events := f.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].UserID)
	assert.Equal(t, "B", events[1].UserID)
}

func TestTurnNotifier_RequeueGetsFreshNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Enqueue(ctx, f.machine.ID, "A")
	require.NoError(t, err)
	_, err = f.manager.Cancel(ctx, f.machine.ID, "A")
	require.NoError(t, err)
	_, err = f.manager.Enqueue(ctx, f.machine.ID, "A")
	require.NoError(t, err)

	events := f.sink.Events()
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].EntryID, events[1].EntryID)
}

func TestTurnNotifier_ConcurrentRecomputeEmitsOnce(t *testing.T) {
	gormDB := testutil.NewDB(t)
	dorm := testutil.SeedDorm(t, gormDB, "East")
	machine := testutil.SeedMachine(t, gormDB, dorm.ID, "Washer")
	require.NoError(t, gormDB.Create(&model.QueueEntry{
		ID: "e-1", MachineID: machine.ID, UserID: "A", Position: 1, Status: model.EntryWaiting,
	}).Error)

	sink := &recordingSink{}
	n := NewTurnNotifier(newStore(gormDB), NewMemoryNotifiedSet(), sink, nil, logging.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := n.Recompute(context.Background(), machine.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, sink.Events(), 1)
}

func TestTurnNotifier_SinkFailureStillMarksNotified(t *testing.T) {
	gormDB := testutil.NewDB(t)
	dorm := testutil.SeedDorm(t, gormDB, "West")
	machine := testutil.SeedMachine(t, gormDB, dorm.ID, "Dryer")
	require.NoError(t, gormDB.Create(&model.QueueEntry{
		ID: "e-1", MachineID: machine.ID, UserID: "A", Position: 1, Status: model.EntryWaiting,
	}).Error)

	calls := 0
	sink := SinkFunc(func(context.Context, model.TurnEvent) error {
		calls++
		return errors.New("push gateway down")
	})
	notified := NewMemoryNotifiedSet()
	n := NewTurnNotifier(newStore(gormDB), notified, sink, nil, logging.Discard())

	event, err := n.Recompute(context.Background(), machine.ID)
	require.NoError(t, err)
	require.NotNil(t, event)

	event, err = n.Recompute(context.Background(), machine.ID)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, notified.Len())

	n.Forget(context.Background(), "e-1")
	assert.Equal(t, 0, notified.Len())
}

func TestTurnNotifier_EmptyQueue(t *testing.T) {
	f := newFixture(t)
	event, err := f.manager.notifier.Recompute(context.Background(), f.machine.ID)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, f.sink.Events())
}

func TestMultiSink_ReportsFirstError(t *testing.T) {
	var got []string
	ok := SinkFunc(func(_ context.Context, e model.TurnEvent) error {
		got = append(got, "ok:"+e.UserID)
		return nil
	})
	failing := SinkFunc(func(context.Context, model.TurnEvent) error {
		return errors.New("boom")
	})

	err := MultiSink{failing, nil, ok}.Notify(context.Background(), model.TurnEvent{UserID: "A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"ok:A"}, got)
}
