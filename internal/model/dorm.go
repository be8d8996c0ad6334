package model

import "time"

// Dorm represents a dormitory building that owns a group of machines.
type Dorm struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`

	// Associations
	Machines []Machine `gorm:"foreignKey:DormID;constraint:OnDelete:CASCADE" json:"-"`
}
