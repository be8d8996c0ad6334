package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to fetch subscriptions for user %s", userID))
	}
	return subs, nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return model.PushSubscription{}, translate(err, "subscription")
	}
	return sub, nil
}

// UpsertSubscription stores sub or refreshes its keys. An endpoint already owned by
// another requester is left untouched and reported as a conflict.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "push_subscriptions", Name: "user_id"}, Value: sub.UserID},
		}},
	}).Create(&sub)
	if res.Error != nil {
		return translate(res.Error, "failed to save subscription")
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("push endpoint is registered to another requester")
	}
	return nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	return translate(err, "failed to delete subscription")
}
