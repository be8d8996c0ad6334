package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/store"
)

// TurnNotifier watches the head of each machine's queue and emits one TurnEvent per entry.
type TurnNotifier struct {
	store    store.Store
	notified NotifiedSet
	sink     Sink
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// NewTurnNotifier creates a notifier. A nil sink drops events after recording them.
func NewTurnNotifier(s store.Store, notified NotifiedSet, sink Sink, m *metrics.Metrics, logger *logrus.Logger) *TurnNotifier {
	if notified == nil {
		notified = NewMemoryNotifiedSet()
	}
	return &TurnNotifier{
		store:    s,
		notified: notified,
		sink:     sink,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Recompute advances machineID's head and delivers the resulting event, if any.
func (n *TurnNotifier) Recompute(ctx context.Context, machineID int64) (*model.TurnEvent, error) {
	event, err := n.Advance(ctx, machineID)
	if err != nil {
		return nil, err
	}
	n.Deliver(ctx, event)
	return event, nil
}

// Advance looks at the current head of machineID's queue and, if that entry has
// not been notified yet, marks it and returns its TurnEvent. It returns nil when
// there is nothing new. Callers hold the machine lock; delivery happens in Deliver.
func (n *TurnNotifier) Advance(ctx context.Context, machineID int64) (*model.TurnEvent, error) {
	entries, err := n.store.ListEntries(ctx, []int64{machineID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]

	added, err := n.notified.Add(ctx, head.ID)
	if err != nil {
		n.metrics.IncTurnNotification("error")
		return nil, err
	}
	if !added {
		return nil, nil
	}

	if _, err := n.store.MarkEntryNotified(ctx, head.ID); err != nil {
		n.logger.WithError(err).WithField("entry_id", head.ID).Warn("could not mark queue entry notified")
	}

	return &model.TurnEvent{
		EntryID:     head.ID,
		UserID:      head.UserID,
		MachineID:   machineID,
		MachineName: n.machineName(ctx, machineID),
		At:          n.now(),
	}, nil
}

// Deliver hands event to the sink. A nil event is ignored.
func (n *TurnNotifier) Deliver(ctx context.Context, event *model.TurnEvent) {
	if event == nil {
		return
	}
	log := n.logger.WithFields(logrus.Fields{
		"entry_id":   event.EntryID,
		"user_id":    event.UserID,
		"machine_id": event.MachineID,
	})
	if n.sink != nil {
		if err := n.sink.Notify(ctx, *event); err != nil {
			n.metrics.IncTurnNotification("sink_error")
			log.WithError(err).Error("turn notification delivery failed")
			return
		}
	}
	n.metrics.IncTurnNotification("sent")
	log.Info("requester reached the head of the queue")
}

// Forget drops entry IDs from the notified set once their entries are gone.
func (n *TurnNotifier) Forget(ctx context.Context, entryIDs ...string) {
	for _, id := range entryIDs {
		if err := n.notified.Remove(ctx, id); err != nil {
			n.logger.WithError(err).WithField("entry_id", id).Warn("could not drop entry from notified set")
		}
	}
}

func (n *TurnNotifier) machineName(ctx context.Context, machineID int64) string {
	machine, err := n.store.GetMachine(ctx, machineID, false)
	if err != nil || machine.Name == "" {
		return fmt.Sprintf("%d", machineID)
	}
	return machine.Name
}
