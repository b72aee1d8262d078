package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/database"
)

// maxResolveAttempts bounds how often a lost insert race re-reads the winner
const maxResolveAttempts = 3

// resolveOrCreate looks up a row of T whose key column equals key, which the
// caller has already folded with models.NameKey, and creates one from build
// when none exists.
// When a concurrent insert wins the unique index, the lookup is repeated and
// the existing row returned. The bool result reports whether a row was created.
func resolveOrCreate[T any](ctx context.Context, db *gorm.DB, keyColumn, key string, build func() *T) (*T, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		var existing T
		err := db.WithContext(ctx).Where(keyColumn+" = ?", key).First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to look up %s '%s': %w", keyColumn, key, err)
		}

		row := build()
		err = db.WithContext(ctx).Create(row).Error
		if err == nil {
			return row, true, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("failed to create row for %s '%s': %w", keyColumn, key, err)
		}
		// lost the race against another insert of the same key, read it back
		lastErr = err
	}
	return nil, false, fmt.Errorf("gave up resolving %s '%s' after %d attempts: %w", keyColumn, key, maxResolveAttempts, lastErr)
}
