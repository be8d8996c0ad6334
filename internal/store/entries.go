package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

func (s *gormStore) ListEntries(ctx context.Context, machineIDs []int64) ([]model.QueueEntry, error) {
	if len(machineIDs) == 0 {
		return []model.QueueEntry{}, nil
	}
	var entries []model.QueueEntry
	err := s.db.WithContext(ctx).
		Where("machine_id IN ?", machineIDs).
		Order("position ASC").
		Order("machine_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, translate(err, "failed to list queue entries")
	}
	return entries, nil
}

func (s *gormStore) ActiveEntryForUser(ctx context.Context, userID string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, activeEntryStatuses).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, fmt.Sprintf("failed to look up queue entry for user %s", userID))
	}
	return &entry, nil
}

var activeEntryStatuses = []model.EntryStatus{model.EntryWaiting, model.EntryNotified, model.EntryInProgress}

func (s *gormStore) MaxPosition(ctx context.Context, machineID int64) (int, error) {
	var maxPosition int
	err := s.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("machine_id = ?", machineID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPosition).Error
	if err != nil {
		return 0, translate(err, fmt.Sprintf("failed to read tail position of machine %d", machineID))
	}
	return maxPosition, nil
}

func (s *gormStore) InsertEntry(ctx context.Context, entry model.QueueEntry) (model.QueueEntry, error) {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.QueueEntry{}, apperr.Wrap(err, apperr.KindConflict, "user %s already holds a queue entry", entry.UserID)
		}
		return model.QueueEntry{}, translate(err, fmt.Sprintf("failed to insert queue entry for machine %d", entry.MachineID))
	}
	return entry, nil
}

func (s *gormStore) DeleteEntry(ctx context.Context, machineID int64, userID string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND user_id = ?", machineID, userID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, fmt.Sprintf("failed to find queue entry on machine %d", machineID))
	}

	if err := s.db.WithContext(ctx).Delete(&model.QueueEntry{}, "id = ?", entry.ID).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to delete queue entry %s", entry.ID))
	}
	return &entry, nil
}

func (s *gormStore) UpdatePositions(ctx context.Context, machineID int64, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for entryID, position := range positions {
			if position < 1 {
				return apperr.Validation("position %d for entry %s is below 1", position, entryID)
			}
			res := tx.Model(&model.QueueEntry{}).
				Where("id = ? AND machine_id = ?", entryID, machineID).
				Update("position", position)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return apperr.NotFound("queue entry %s is not on machine %d", entryID, machineID)
			}
		}
		return nil
	})
	return translate(err, fmt.Sprintf("failed to reindex queue of machine %d", machineID))
}

func (s *gormStore) DeleteEntries(ctx context.Context, machineID int64) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	if err := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Order("position ASC").Find(&entries).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to list queue of machine %d", machineID))
	}
	if len(entries) == 0 {
		return entries, nil
	}
	if err := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Delete(&model.QueueEntry{}).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to purge queue of machine %d", machineID))
	}
	return entries, nil
}

func (s *gormStore) MarkEntryNotified(ctx context.Context, entryID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", entryID, model.EntryWaiting).
		Update("status", model.EntryNotified)
	if res.Error != nil {
		return false, translate(res.Error, fmt.Sprintf("failed to mark queue entry %s notified", entryID))
	}
	return res.RowsAffected == 1, nil
}
