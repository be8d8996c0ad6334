package store

import (
	"context"
	"fmt"
	"time"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

func (s *gormStore) ListIssues(ctx context.Context, machineIDs []int64) ([]model.IssueReport, error) {
	if len(machineIDs) == 0 {
		return []model.IssueReport{}, nil
	}
	var issues []model.IssueReport
	err := s.db.WithContext(ctx).
		Where("machine_id IN ?", machineIDs).
		Order("created_at DESC").
		Order("id DESC").
		Find(&issues).Error
	if err != nil {
		return nil, translate(err, "failed to list issue reports")
	}
	return issues, nil
}

func (s *gormStore) GetIssue(ctx context.Context, issueID string) (model.IssueReport, error) {
	var issue model.IssueReport
	if err := s.db.WithContext(ctx).First(&issue, "id = ?", issueID).Error; err != nil {
		return model.IssueReport{}, translate(err, fmt.Sprintf("issue %s", issueID))
	}
	return issue, nil
}

func (s *gormStore) InsertIssue(ctx context.Context, issue model.IssueReport) (model.IssueReport, error) {
	if err := s.db.WithContext(ctx).Create(&issue).Error; err != nil {
		return model.IssueReport{}, translate(err, fmt.Sprintf("failed to create issue report for machine %d", issue.MachineID))
	}
	return issue, nil
}

func (s *gormStore) UpdateIssueStatus(ctx context.Context, issueID string, expected, status model.IssueStatus, at time.Time) (model.IssueReport, error) {
	res := s.db.WithContext(ctx).
		Model(&model.IssueReport{}).
		Where("id = ? AND status = ?", issueID, expected).
		Updates(map[string]any{"status": status, "modified_at": at})
	if res.Error != nil {
		return model.IssueReport{}, translate(res.Error, fmt.Sprintf("failed to update issue %s", issueID))
	}
	if res.RowsAffected == 0 {
		current, err := s.GetIssue(ctx, issueID)
		if err != nil {
			return model.IssueReport{}, err
		}
		return model.IssueReport{}, apperr.InvalidTransition("issue %s is %s, expected %s", issueID, current.Status, expected)
	}
	return s.GetIssue(ctx, issueID)
}

func (s *gormStore) DeleteIssues(ctx context.Context, machineID int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Delete(&model.IssueReport{})
	if res.Error != nil {
		return 0, translate(res.Error, fmt.Sprintf("failed to delete issue reports of machine %d", machineID))
	}
	return res.RowsAffected, nil
}
