package model

import "time"

// EntryStatus tracks a queue entry through its life.
type EntryStatus string

const (
	EntryWaiting    EntryStatus = "waiting"
	EntryNotified   EntryStatus = "notified"
	EntryInProgress EntryStatus = "in_progress"
	EntryCompleted  EntryStatus = "completed"
	EntryCancelled  EntryStatus = "cancelled"
)

// Active reports whether the entry still holds a position.
func (s EntryStatus) Active() bool {
	switch s {
	case EntryWaiting, EntryNotified, EntryInProgress:
		return true
	}
	return false
}

// QueueEntry is a requester's claim on a position in a machine's waiting list.
// Rows only exist while the entry is active, so the unique index on UserID
// enforces one queue per requester across all machines.
type QueueEntry struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	MachineID int64       `gorm:"not null;index:idx_queue_machine_position,priority:1" json:"machineId"`
	UserID    string      `gorm:"size:64;not null;uniqueIndex" json:"userId"`
	Position  int         `gorm:"not null;index:idx_queue_machine_position,priority:2" json:"position"`
	JoinedAt  time.Time   `gorm:"not null" json:"joinedAt"`
	Status    EntryStatus `gorm:"size:16;not null" json:"status"`

	// Resolved from the profile collaborator; nil means unknown.
	StudentName *string `gorm:"-" json:"studentName"`
	StudentIDNo *string `gorm:"-" json:"studentIdNo"`
}
