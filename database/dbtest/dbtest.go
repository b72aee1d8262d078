// Package dbtest provides a throwaway migrated SQLite database for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/birdphotos/database"
)

// Open creates a migrated database in the test's temp dir and closes it on cleanup.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "birds_test.db")
	db, err := database.Open(path, logger.Silent)
	require.NoError(tb, err)

	tb.Cleanup(func() {
		database.Close(db)
	})
	return db
}
