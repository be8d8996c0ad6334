package model

import "time"

// TurnEvent announces that a queue entry reached the head of its machine's queue.
type TurnEvent struct {
	EntryID     string    `json:"entryId"`
	UserID      string    `json:"userId"`
	MachineID   int64     `json:"machineId"`
	MachineName string    `json:"machineName"`
	At          time.Time `json:"at"`
}
