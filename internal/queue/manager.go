package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/store"
)

// Manager owns enqueue, cancel and listing for every machine's queue and keeps
// active positions for a machine exactly 1..N in join order.
//
// Locks are taken user before machine. Operations on one machine are serialised;
// different machines proceed in parallel.
type Manager struct {
	store    store.Store
	locks    *KeyedMutex
	notifier *TurnNotifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
	newID    func() string
}

// NewManager creates a queue manager that reports head-of-line changes to notifier.
func NewManager(s store.Store, notifier *TurnNotifier, m *metrics.Metrics, logger *logrus.Logger) *Manager {
	return &Manager{
		store:    s,
		locks:    NewKeyedMutex(),
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Enqueue appends userID to the tail of machineID's queue.
func (m *Manager) Enqueue(ctx context.Context, machineID int64, userID string) (model.QueueEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		err := apperr.Validation("requester id is required")
		m.metrics.IncQueueOp("enqueue", err)
		return model.QueueEntry{}, err
	}

	log := m.logger.WithFields(logrus.Fields{"machine_id": machineID, "user_id": userID})
	var created model.QueueEntry
	err := m.locked(ctx, machineID, []string{userKey(userID), machineKey(machineID)}, func() error {
		err := m.store.Transaction(ctx, func(tx store.Store) error {
			machine, err := tx.GetMachine(ctx, machineID, true)
			if err != nil {
				return err
			}
			if !machine.Operational() {
				return apperr.Unavailable("machine %s is %s and cannot be queued for", machine.Name, machine.OperationStatus)
			}

			existing, err := tx.ActiveEntryForUser(ctx, userID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.MachineID == machineID {
					return apperr.Conflict("already in this machine's queue")
				}
				return apperr.Conflict("already queued for another machine; cancel that queue first")
			}

			tail, err := tx.MaxPosition(ctx, machineID)
			if err != nil {
				return err
			}
			created, err = tx.InsertEntry(ctx, model.QueueEntry{
				ID:        m.newID(),
				MachineID: machineID,
				UserID:    userID,
				Position:  tail + 1,
				JoinedAt:  m.now(),
				Status:    model.EntryWaiting,
			})
			return err
		})
		if err == nil {
			log.WithField("position", created.Position).Info("requester joined queue")
		}
		return err
	})
	m.metrics.IncQueueOp("enqueue", err)
	if err != nil {
		logFailure(log, err, "enqueue rejected")
		return model.QueueEntry{}, err
	}
	return created, nil
}

// Cancel removes userID's entry from machineID's queue and closes the gap behind it.
// It returns the position the entry held.
func (m *Manager) Cancel(ctx context.Context, machineID int64, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		err := apperr.Validation("requester id is required")
		m.metrics.IncQueueOp("cancel", err)
		return 0, err
	}

	log := m.logger.WithFields(logrus.Fields{"machine_id": machineID, "user_id": userID})
	var removed model.QueueEntry
	err := m.locked(ctx, machineID, []string{machineKey(machineID)}, func() error {
		err := m.store.Transaction(ctx, func(tx store.Store) error {
			if _, err := tx.GetMachine(ctx, machineID, true); err != nil {
				return err
			}
			deleted, err := tx.DeleteEntry(ctx, machineID, userID)
			if err != nil {
				return err
			}
			if deleted == nil {
				return apperr.NotFound("queue entry not found")
			}
			removed = *deleted

			remaining, err := tx.ListEntries(ctx, []int64{machineID})
			if err != nil {
				return err
			}
			return tx.UpdatePositions(ctx, machineID, closeGap(remaining, removed.Position))
		})
		if err != nil {
			return err
		}
		log.WithField("position", removed.Position).Info("requester left queue")
		m.notifier.Forget(ctx, removed.ID)
		return nil
	})
	m.metrics.IncQueueOp("cancel", err)
	if err != nil {
		logFailure(log, err, "cancel rejected")
		return 0, err
	}
	return removed.Position, nil
}

// closeGap moves every entry behind removed up by exactly one.
func closeGap(entries []model.QueueEntry, removed int) map[string]int {
	shifts := make(map[string]int)
	for _, e := range entries {
		if e.Position > removed {
			shifts[e.ID] = e.Position - 1
		}
	}
	return shifts
}

// ListByResource returns machineID's queue in position order with display names attached.
func (m *Manager) ListByResource(ctx context.Context, machineID int64) ([]model.QueueEntry, error) {
	return m.List(ctx, []int64{machineID})
}

// List returns the queues of several machines ordered by position.
func (m *Manager) List(ctx context.Context, machineIDs []int64) ([]model.QueueEntry, error) {
	entries, err := m.store.ListEntries(ctx, machineIDs)
	if err != nil {
		return nil, err
	}
	return m.attachProfiles(ctx, entries), nil
}

// attachProfiles fills display fields from the profile collaborator. A failed lookup
// leaves them nil (unknown) rather than failing the listing.
func (m *Manager) attachProfiles(ctx context.Context, entries []model.QueueEntry) []model.QueueEntry {
	if len(entries) == 0 {
		return entries
	}
	seen := make(map[string]struct{}, len(entries))
	userIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.UserID]; !ok {
			seen[e.UserID] = struct{}{}
			userIDs = append(userIDs, e.UserID)
		}
	}

	profiles, err := m.store.Profiles(ctx, userIDs)
	if err != nil {
		m.logger.WithError(err).Warn("profile lookup failed; queue entries returned without names")
		return entries
	}
	for i := range entries {
		if p, ok := profiles[entries[i].UserID]; ok {
			entries[i].StudentName = p.Name
			entries[i].StudentIDNo = p.IDNo
		}
	}
	return entries
}

// Mutate runs fn in a transaction that has row-locked machineID, while holding the
// machine's queue lock, then re-evaluates the head of the queue. Other components use
// it to change a machine and its queue as one unit. A missing machine is not_found.
func (m *Manager) Mutate(ctx context.Context, machineID int64, fn func(tx store.Store) error) error {
	return m.locked(ctx, machineID, []string{machineKey(machineID)}, func() error {
		return m.store.Transaction(ctx, func(tx store.Store) error {
			if _, err := tx.GetMachine(ctx, machineID, true); err != nil {
				return err
			}
			return fn(tx)
		})
	})
}

// Purge deletes every entry in machineID's queue and then runs then, which may be
// nil, in the same transaction. It returns the removed entries.
func (m *Manager) Purge(ctx context.Context, machineID int64, then func(tx store.Store) error) ([]model.QueueEntry, error) {
	var purged []model.QueueEntry
	err := m.Mutate(ctx, machineID, func(tx store.Store) error {
		var err error
		if purged, err = tx.DeleteEntries(ctx, machineID); err != nil {
			return err
		}
		if then != nil {
			return then(tx)
		}
		return nil
	})
	m.metrics.IncQueueOp("purge", err)
	if err != nil {
		return nil, err
	}

	m.metrics.AddPurged(len(purged))
	ids := make([]string, len(purged))
	for i, e := range purged {
		ids[i] = e.ID
	}
	m.notifier.Forget(ctx, ids...)
	if len(purged) > 0 {
		m.logger.WithFields(logrus.Fields{"machine_id": machineID, "purged": len(purged)}).Info("queue purged")
	}
	return purged, nil
}

// locked runs fn while holding keys in order. When fn succeeds the head of
// machineID's queue is advanced under the same locks, and the resulting turn event
// is delivered after they are released so a slow sink never blocks the machine.
func (m *Manager) locked(ctx context.Context, machineID int64, keys []string, fn func() error) error {
	event, err := func() (*model.TurnEvent, error) {
		for _, key := range keys {
			unlock := m.locks.Lock(key)
			defer unlock()
		}
		if err := fn(); err != nil {
			return nil, err
		}
		return m.advance(ctx, machineID), nil
	}()
	if err != nil {
		return err
	}
	m.notifier.Deliver(ctx, event)
	return nil
}

func (m *Manager) advance(ctx context.Context, machineID int64) *model.TurnEvent {
	event, err := m.notifier.Advance(ctx, machineID)
	if err != nil {
		m.logger.WithError(err).WithField("machine_id", machineID).Error("turn recomputation failed")
		return nil
	}
	return event
}

func logFailure(log *logrus.Entry, err error, msg string) {
	if apperr.Is(err, apperr.KindTransientStore) || apperr.Is(err, apperr.KindInternal) {
		log.WithError(err).Error(msg)
		return
	}
	log.WithError(err).Debug(msg)
}
