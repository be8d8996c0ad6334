// Package testutil provides shared helpers for tests that need a real database.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"laundry-queue-backend/internal/db"
	"laundry-queue-backend/internal/model"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory sqlite database with every table migrated.
// A single connection serialises access, which matches how sqlite handles writers anyway.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// SeedDorm inserts a dorm and returns it.
func SeedDorm(t *testing.T, gormDB *gorm.DB, name string) model.Dorm {
	t.Helper()
	dorm := model.Dorm{Name: name}
	require.NoError(t, gormDB.Create(&dorm).Error)
	return dorm
}

// SeedMachine inserts an operational, free machine in dormID.
func SeedMachine(t *testing.T, gormDB *gorm.DB, dormID int64, name string) model.Machine {
	t.Helper()
	machine := model.Machine{
		DormID:             dormID,
		Name:               name,
		Location:           "Basement",
		OperationStatus:    model.OperationOperational,
		AvailabilityStatus: model.AvailabilityFree,
	}
	require.NoError(t, gormDB.Create(&machine).Error)
	return machine
}
