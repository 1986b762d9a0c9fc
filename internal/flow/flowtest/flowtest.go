// Package flowtest provides database fixtures for flow package tests.
package flowtest

import (
	"testing"

	"github.com/flowvault-go/internal/flow/adapters/db/repository"
	"github.com/flowvault-go/pkg/database"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. The pool is pinned to a
// single connection so every query sees the same database.
func NewDB(t testing.TB) *database.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := &database.DB{DB: gormDB}
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func NewRepository(t testing.TB) *repository.FlowRepository {
	return repository.NewFlowRepository(NewDB(t))
}
