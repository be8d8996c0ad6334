package store

import (
	"context"

	"laundry-queue-backend/internal/model"
)

func (s *gormStore) Profiles(ctx context.Context, userIDs []string) (map[string]model.User, error) {
	profiles := make(map[string]model.User, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, translate(err, "failed to load profiles")
	}
	for _, u := range users {
		profiles[u.ID] = u
	}
	return profiles, nil
}
