package model

import "time"

// PushSubscription holds a browser push subscription owned by a requester.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	UserID    string    `gorm:"size:64;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}
