package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

// EntryStore is the ordered, durable collection of queue entries.
type EntryStore interface {
	// ListEntries returns entries for the given machines ordered by position ascending.
	ListEntries(ctx context.Context, machineIDs []int64) ([]model.QueueEntry, error)
	ActiveEntryForUser(ctx context.Context, userID string) (*model.QueueEntry, error)
	MaxPosition(ctx context.Context, machineID int64) (int, error)
	InsertEntry(ctx context.Context, entry model.QueueEntry) (model.QueueEntry, error)
	// DeleteEntry removes the user's entry on the machine, returning nil when there was none.
	DeleteEntry(ctx context.Context, machineID int64, userID string) (*model.QueueEntry, error)
	// UpdatePositions assigns new positions by entry ID, all or nothing.
	UpdatePositions(ctx context.Context, machineID int64, positions map[string]int) error
	DeleteEntries(ctx context.Context, machineID int64) ([]model.QueueEntry, error)
	MarkEntryNotified(ctx context.Context, entryID string) (bool, error)
}

// IssueStore holds fault reports.
type IssueStore interface {
	// ListIssues returns reports for the given machines, newest first.
	ListIssues(ctx context.Context, machineIDs []int64) ([]model.IssueReport, error)
	GetIssue(ctx context.Context, issueID string) (model.IssueReport, error)
	InsertIssue(ctx context.Context, issue model.IssueReport) (model.IssueReport, error)
	// UpdateIssueStatus moves an issue from expected to status; it fails with an
	// invalid transition when the stored status no longer equals expected.
	UpdateIssueStatus(ctx context.Context, issueID string, expected, status model.IssueStatus, at time.Time) (model.IssueReport, error)
	DeleteIssues(ctx context.Context, machineID int64) (int64, error)
}

// MachineStore is the machine and dorm registry.
type MachineStore interface {
	// GetMachine loads a machine; forUpdate row-locks it for the rest of the transaction.
	GetMachine(ctx context.Context, machineID int64, forUpdate bool) (model.Machine, error)
	ListMachines(ctx context.Context, dormID int64) ([]model.Machine, error)
	MachinesByExternalID(ctx context.Context, externalIDs []int64) (map[int64]model.Machine, error)
	CreateMachine(ctx context.Context, machine model.Machine) (model.Machine, error)
	UpdateMachineDetails(ctx context.Context, machineID int64, name, location string, floor, seq int) (model.Machine, error)
	SetOperationStatus(ctx context.Context, machineID int64, status model.OperationStatus) (model.Machine, error)
	SetAvailability(ctx context.Context, updates map[int64]model.AvailabilityStatus) (int, error)
	DeleteMachine(ctx context.Context, machineID int64) error

	ListDorms(ctx context.Context) ([]DormSummary, error)
	GetDorm(ctx context.Context, dormID int64) (model.Dorm, error)
	CreateDorm(ctx context.Context, name string) (model.Dorm, error)
}

// ProfileStore resolves display data from the profile collaborator.
type ProfileStore interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]model.User, error)
}

// SubscriptionStore holds web push subscriptions.
type SubscriptionStore interface {
	SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Store defines the interface for all database operations.
type Store interface {
	EntryStore
	IssueStore
	MachineStore
	ProfileStore
	SubscriptionStore

	// Transaction runs fn against a transactional Store; any error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// DormSummary is a dorm together with aggregates over its machines.
type DormSummary struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	MaxFloor      int    `json:"maxFloor"`
	TotalMachines int64  `json:"totalMachines"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Transaction runs fn inside a database transaction. Nested calls use savepoints.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
	return translate(err, "transaction failed")
}

// translate classifies a gorm error. Already classified errors pass through untouched.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(err, apperr.KindNotFound, "%s: not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(err, apperr.KindConflict, "%s: duplicate record", what)
	default:
		return apperr.Wrap(err, apperr.KindTransientStore, "%s", what)
	}
}
