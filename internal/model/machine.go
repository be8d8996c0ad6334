package model

import "time"

// OperationStatus says whether a machine may be queued for at all.
type OperationStatus string

const (
	OperationOperational      OperationStatus = "operational"
	OperationUnavailable      OperationStatus = "unavailable"
	OperationUnderMaintenance OperationStatus = "under_maintenance"
)

// Valid reports whether s is a known operation status.
func (s OperationStatus) Valid() bool {
	switch s {
	case OperationOperational, OperationUnavailable, OperationUnderMaintenance:
		return true
	}
	return false
}

// AvailabilityStatus is the occupancy of an operational machine.
type AvailabilityStatus string

const (
	AvailabilityFree     AvailabilityStatus = "free"
	AvailabilityOccupied AvailabilityStatus = "occupied"
)

// Machine represents a laundry machine and its current status.
type Machine struct {
	ID                 int64              `gorm:"primaryKey" json:"id"`
	DormID             int64              `gorm:"index;not null" json:"dormId"`
	Name               string             `gorm:"size:256;not null" json:"name"`
	Location           string             `gorm:"size:256" json:"location"`
	OperationStatus    OperationStatus    `gorm:"size:32;not null;default:operational" json:"operationStatus"`
	AvailabilityStatus AvailabilityStatus `gorm:"size:16;not null;default:free" json:"availabilityStatus"`
	ExternalID         *int64             `gorm:"uniqueIndex" json:"externalId,omitempty"` // Upstream device ID
	Floor              int                `json:"floor"`
	Seq                int                `json:"seq"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"lastUpdated"`
}

// Operational reports whether requesters may join the machine's queue.
func (m Machine) Operational() bool {
	return m.OperationStatus == OperationOperational
}
