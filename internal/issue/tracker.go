// Package issue tracks fault reports filed against machines.
package issue

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

// NewReport is the caller input for Create.
type NewReport struct {
	MachineID   int64
	ReporterID  string
	IssueType   string
	Description string
	DisplayID   *string
}

// Tracker owns issue creation and its forward-only status lifecycle.
type Tracker struct {
	store             store.Store
	requireInProgress bool
	metrics           *metrics.Metrics
	logger            *logrus.Logger
	now               func() time.Time
	newID             func() string
}

// NewTracker creates a Tracker. With requireInProgress set, resolve is only
// accepted from in_progress.
func NewTracker(s store.Store, requireInProgress bool, m *metrics.Metrics, logger *logrus.Logger) *Tracker {
	return &Tracker{
		store:             s,
		requireInProgress: requireInProgress,
		metrics:           m,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
	}
}

// Create files a new open report.
func (t *Tracker) Create(ctx context.Context, in NewReport) (model.IssueReport, error) {
	reporter := strings.TrimSpace(in.ReporterID)
	if reporter == "" {
		return model.IssueReport{}, apperr.Validation("reporter id is required")
	}
	issueType := strings.TrimSpace(in.IssueType)
	if issueType == "" {
		issueType = model.DefaultIssueType
	}

	// The machine row stays locked until the insert commits, so a concurrent
	// deletion either sees the new report and removes it or runs first.
	var issue model.IssueReport
	err := t.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetMachine(ctx, in.MachineID, true); err != nil {
			return err
		}
		var err error
		issue, err = tx.InsertIssue(ctx, model.IssueReport{
			ID:          t.newID(),
			MachineID:   in.MachineID,
			ReporterID:  reporter,
			DisplayID:   in.DisplayID,
			IssueType:   issueType,
			Description: strings.TrimSpace(in.Description),
			Status:      model.IssueOpen,
			CreatedAt:   t.now(),
		})
		return err
	})
	if err != nil {
		return model.IssueReport{}, err
	}
	t.metrics.IncIssueTransition(model.IssueOpen)
	t.logger.WithFields(logrus.Fields{
		"issue_id":   issue.ID,
		"machine_id": issue.MachineID,
		"type":       issue.IssueType,
	}).Info("issue reported")
	return issue, nil
}

// MarkInProgress moves an open issue to in_progress.
func (t *Tracker) MarkInProgress(ctx context.Context, issueID string) (model.IssueReport, error) {
	return t.transition(ctx, issueID, model.IssueInProgress, func(from model.IssueStatus) bool {
		return from == model.IssueOpen
	})
}

// Resolve closes an issue.
func (t *Tracker) Resolve(ctx context.Context, issueID string) (model.IssueReport, error) {
	return t.transition(ctx, issueID, model.IssueResolved, func(from model.IssueStatus) bool {
		if t.requireInProgress {
			return from == model.IssueInProgress
		}
		return from.Advances(model.IssueResolved)
	})
}

func (t *Tracker) transition(ctx context.Context, issueID string, to model.IssueStatus, allowed func(model.IssueStatus) bool) (model.IssueReport, error) {
	if strings.TrimSpace(issueID) == "" {
		return model.IssueReport{}, apperr.Validation("issue id is required")
	}
	current, err := t.store.GetIssue(ctx, issueID)
	if err != nil {
		return model.IssueReport{}, err
	}
	if !allowed(current.Status) {
		return model.IssueReport{}, apperr.InvalidTransition("cannot move issue from %s to %s", current.Status, to)
	}

	// The store re-checks the status so a concurrent change surfaces as an invalid transition.
	updated, err := t.store.UpdateIssueStatus(ctx, issueID, current.Status, to, t.now())
	if err != nil {
		return model.IssueReport{}, err
	}
	t.metrics.IncIssueTransition(to)
	t.logger.WithFields(logrus.Fields{
		"issue_id": issueID,
		"from":     current.Status,
		"to":       to,
	}).Info("issue status changed")
	return updated, nil
}

// List returns the reports for the given machines, newest first.
func (t *Tracker) List(ctx context.Context, machineIDs []int64) ([]model.IssueReport, error) {
	return t.store.ListIssues(ctx, machineIDs)
}

// ActiveIssueForResource returns the most recent unresolved report for machineID, or nil.
func (t *Tracker) ActiveIssueForResource(ctx context.Context, machineID int64) (*model.IssueReport, error) {
	active, err := t.ActiveIssues(ctx, []int64{machineID})
	if err != nil {
		return nil, err
	}
	return active[machineID], nil
}

// ActiveIssues derives the active issue of each machine that has one.
func (t *Tracker) ActiveIssues(ctx context.Context, machineIDs []int64) (map[int64]*model.IssueReport, error) {
	issues, err := t.store.ListIssues(ctx, machineIDs)
	if err != nil {
		return nil, err
	}
	active := make(map[int64]*model.IssueReport)
	for i := range issues {
		issue := &issues[i]
		if issue.Resolved() {
			continue
		}
		if cur, ok := active[issue.MachineID]; !ok || newer(issue, cur) {
			active[issue.MachineID] = issue
		}
	}
	return active, nil
}

// newer orders by createdAt, then by id so ties are deterministic.
func newer(a, b *model.IssueReport) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
