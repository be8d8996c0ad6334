package model

import "time"

// IssueStatus is the lifecycle state of a fault report.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
)

// DefaultIssueType is used when a reporter leaves the type blank.
const DefaultIssueType = "Laundry Issue"

func (s IssueStatus) rank() int {
	switch s {
	case IssueOpen:
		return 1
	case IssueInProgress:
		return 2
	case IssueResolved:
		return 3
	}
	return 0
}

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	return s.rank() > 0
}

// Advances reports whether moving from s to next goes strictly forward.
func (s IssueStatus) Advances(next IssueStatus) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

// IssueReport is a fault report filed against a machine. Reports are never deleted
// except when their machine is.
type IssueReport struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	MachineID   int64       `gorm:"not null;index" json:"machineId"`
	ReporterID  string      `gorm:"size:64;not null" json:"reporterId"`
	DisplayID   *string     `gorm:"size:64" json:"displayId"`
	IssueType   string      `gorm:"size:128;not null" json:"issueType"`
	Description string      `gorm:"type:text" json:"description"`
	Status      IssueStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt   time.Time   `gorm:"not null;index" json:"createdAt"`
	ModifiedAt  *time.Time  `json:"modifiedAt"`
}

// Resolved reports whether the issue is closed.
func (i IssueReport) Resolved() bool {
	return i.Status == IssueResolved
}
