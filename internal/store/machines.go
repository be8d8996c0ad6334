package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

func (s *gormStore) GetMachine(ctx context.Context, machineID int64, forUpdate bool) (model.Machine, error) {
	q := s.db.WithContext(ctx)
	if forUpdate {
		// sqlite drops the locking clause; postgres holds the row until commit.
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var machine model.Machine
	if err := q.First(&machine, machineID).Error; err != nil {
		return model.Machine{}, translate(err, fmt.Sprintf("machine %d", machineID))
	}
	return machine, nil
}

func (s *gormStore) ListMachines(ctx context.Context, dormID int64) ([]model.Machine, error) {
	var machines []model.Machine
	err := s.db.WithContext(ctx).
		Where("dorm_id = ?", dormID).
		Order("floor ASC").
		Order("seq ASC").
		Order("name ASC").
		Find(&machines).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("failed to list machines of dorm %d", dormID))
	}
	return machines, nil
}

func (s *gormStore) MachinesByExternalID(ctx context.Context, externalIDs []int64) (map[int64]model.Machine, error) {
	machineMap := make(map[int64]model.Machine, len(externalIDs))
	if len(externalIDs) == 0 {
		return machineMap, nil
	}
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Where("external_id IN ?", externalIDs).Find(&machines).Error; err != nil {
		return nil, translate(err, "failed to look up machines by upstream id")
	}
	for _, m := range machines {
		if m.ExternalID != nil {
			machineMap[*m.ExternalID] = m
		}
	}
	return machineMap, nil
}

func (s *gormStore) CreateMachine(ctx context.Context, machine model.Machine) (model.Machine, error) {
	if machine.OperationStatus == "" {
		machine.OperationStatus = model.OperationOperational
	}
	if machine.AvailabilityStatus == "" {
		machine.AvailabilityStatus = model.AvailabilityFree
	}
	if err := s.db.WithContext(ctx).Create(&machine).Error; err != nil {
		return model.Machine{}, translate(err, fmt.Sprintf("failed to create machine %q", machine.Name))
	}
	return machine, nil
}

func (s *gormStore) UpdateMachineDetails(ctx context.Context, machineID int64, name, location string, floor, seq int) (model.Machine, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Machine{ID: machineID}).
		Updates(map[string]any{"name": name, "location": location, "floor": floor, "seq": seq})
	if res.Error != nil {
		return model.Machine{}, translate(res.Error, fmt.Sprintf("failed to update machine %d", machineID))
	}
	if res.RowsAffected == 0 {
		return model.Machine{}, apperr.NotFound("machine %d not found", machineID)
	}
	return s.GetMachine(ctx, machineID, false)
}

func (s *gormStore) SetOperationStatus(ctx context.Context, machineID int64, status model.OperationStatus) (model.Machine, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Machine{ID: machineID}).
		Update("operation_status", status)
	if res.Error != nil {
		return model.Machine{}, translate(res.Error, fmt.Sprintf("failed to set status of machine %d", machineID))
	}
	if res.RowsAffected == 0 {
		return model.Machine{}, apperr.NotFound("machine %d not found", machineID)
	}
	return s.GetMachine(ctx, machineID, false)
}

// SetAvailability applies occupancy changes and returns how many machines changed.
func (s *gormStore) SetAvailability(ctx context.Context, updates map[int64]model.AvailabilityStatus) (int, error) {
	changed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for machineID, status := range updates {
			res := tx.Model(&model.Machine{ID: machineID}).
				Where("availability_status <> ?", status).
				Update("availability_status", status)
			if res.Error != nil {
				return res.Error
			}
			changed += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, translate(err, "failed to update machine availability")
	}
	return changed, nil
}

func (s *gormStore) DeleteMachine(ctx context.Context, machineID int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Machine{}, machineID)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("failed to delete machine %d", machineID))
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("machine %d not found", machineID)
	}
	return nil
}

func (s *gormStore) ListDorms(ctx context.Context) ([]DormSummary, error) {
	var dorms []model.Dorm
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&dorms).Error; err != nil {
		return nil, translate(err, "failed to retrieve dorms")
	}

	type aggRow struct {
		DormID        int64
		TotalMachines int64
		MaxFloor      int
	}
	var aggs []aggRow
	if err := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Select("dorm_id as dorm_id, COUNT(*) as total_machines, COALESCE(MAX(floor), 0) as max_floor").
		Group("dorm_id").
		Scan(&aggs).Error; err != nil {
		return nil, translate(err, "failed to aggregate machines")
	}

	aggMap := make(map[int64]aggRow, len(aggs))
	for _, a := range aggs {
		aggMap[a.DormID] = a
	}

	summaries := make([]DormSummary, 0, len(dorms))
	for _, d := range dorms {
		a := aggMap[d.ID]
		summaries = append(summaries, DormSummary{
			ID:            d.ID,
			Name:          d.Name,
			MaxFloor:      a.MaxFloor,
			TotalMachines: a.TotalMachines,
		})
	}
	return summaries, nil
}

func (s *gormStore) GetDorm(ctx context.Context, dormID int64) (model.Dorm, error) {
	var dorm model.Dorm
	if err := s.db.WithContext(ctx).First(&dorm, dormID).Error; err != nil {
		return model.Dorm{}, translate(err, fmt.Sprintf("dorm %d", dormID))
	}
	return dorm, nil
}

func (s *gormStore) CreateDorm(ctx context.Context, name string) (model.Dorm, error) {
	dorm := model.Dorm{Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&dorm).Error; err != nil {
		return model.Dorm{}, translate(err, fmt.Sprintf("failed to create dorm %q", dorm.Name))
	}
	return dorm, nil
}
