// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/learnpay/internal/migration"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens an isolated in-memory sqlite database with the full schema.
// A single connection keeps transactions serialized the way row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:learnpay_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.EnsureSQLiteSchema(db))
	return db
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t *testing.T, db *gorm.DB, id int64, email, first, last string) snowflake.ID {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO users (id, email, first_name, last_name, phone, role, created_at) VALUES (?, ?, ?, ?, '', 'student', ?)`,
		id, email, first, last, time.Now().UTC(),
	).Error)
	return snowflake.ID(id)
}

// SeedCourse inserts a course priced in minor units.
func SeedCourse(t *testing.T, db *gorm.DB, id int64, title string, priceMinor int64, currency string, isFree bool) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO courses (id, title, price_minor, currency, is_free, enrollment_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, title, priceMinor, currency, isFree, now, now,
	).Error)
	return snowflake.ID(id)
}

// Count returns SELECT COUNT(*) for the given table and optional filter.
func Count(t *testing.T, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var count int64
	require.NoError(t, db.Raw(query, args...).Scan(&count).Error)
	return count
}
