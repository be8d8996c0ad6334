package model

// User is the read-only view of the profile collaborator used to label queue entries.
type User struct {
	ID     string  `gorm:"primaryKey;size:64"`
	Name   *string `gorm:"size:128"`
	IDNo   *string `gorm:"column:id_no;size:64"`
	DormID *int64  `gorm:"index"`
}
