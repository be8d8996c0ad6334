// Package availability applies machine operation-status changes and cascades
// them into the machine's queue.
package availability

import (
	"context"

	"github.com/sirupsen/logrus"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/queue"
	"laundry-queue-backend/internal/store"
)

// Coordinator changes machine status and deletes machines, keeping queues consistent.
type Coordinator struct {
	queues  *queue.Manager
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewCoordinator creates a Coordinator that purges through queues.
func NewCoordinator(queues *queue.Manager, m *metrics.Metrics, logger *logrus.Logger) *Coordinator {
	return &Coordinator{queues: queues, metrics: m, logger: logger}
}

// StatusChange is the outcome of SetStatus.
type StatusChange struct {
	Machine model.Machine `json:"machine"`
	Purged  int           `json:"purged"`
}

// SetStatus persists status. Leaving operational empties the queue in the same
// transaction; returning to operational leaves it empty.
func (c *Coordinator) SetStatus(ctx context.Context, machineID int64, status model.OperationStatus) (StatusChange, error) {
	if !status.Valid() {
		return StatusChange{}, apperr.Validation("unknown operation status %q", status)
	}

	var change StatusChange
	apply := func(tx store.Store) error {
		machine, err := tx.SetOperationStatus(ctx, machineID, status)
		change.Machine = machine
		return err
	}

	if status == model.OperationOperational {
		if err := c.queues.Mutate(ctx, machineID, apply); err != nil {
			return StatusChange{}, err
		}
	} else {
		purged, err := c.queues.Purge(ctx, machineID, apply)
		if err != nil {
			return StatusChange{}, err
		}
		change.Purged = len(purged)
	}

	c.metrics.IncMachineStatus(status)
	c.logger.WithFields(logrus.Fields{
		"machine_id": machineID,
		"status":     status,
		"purged":     change.Purged,
	}).Info("machine status changed")
	return change, nil
}

// DeleteResource removes machineID together with its queue entries and issue reports.
func (c *Coordinator) DeleteResource(ctx context.Context, machineID int64) error {
	var issues int64
	purged, err := c.queues.Purge(ctx, machineID, func(tx store.Store) error {
		var err error
		if issues, err = tx.DeleteIssues(ctx, machineID); err != nil {
			return err
		}
		return tx.DeleteMachine(ctx, machineID)
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"machine_id": machineID,
		"entries":    len(purged),
		"issues":     issues,
	}).Info("machine deleted")
	return nil
}
