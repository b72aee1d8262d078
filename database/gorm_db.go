package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/birdphotos/models"
)

// ParseLogLevel maps a DB_LOG_LEVEL value onto a GORM log level
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// dsn appends the pragmas every connection needs. WAL keeps readers from
// blocking the single writer, the busy timeout absorbs short write contention.
// Transactions take the write lock up front so a read-then-write transaction
// waits on the busy timeout instead of failing its lock upgrade.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string, level logger.LogLevel) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn(dataSourceName)), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("GORM Database initialized successfully at", dataSourceName)
	return db, nil
}

// AutoMigrateModels creates or updates every table used by the catalog
func AutoMigrateModels(db *gorm.DB) error {
	if err := pruneOrphanLinks(db); err != nil {
		return err
	}
	err := db.AutoMigrate(
		&models.Photographer{},
		&models.Species{},
		&models.Photo{},
		&models.PhotoSpecies{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	for _, t := range keyedTables {
		if err := backfillNameKeys(db, t); err != nil {
			return err
		}
	}
	log.Println("GORM AutoMigrate completed successfully.")
	return nil
}

// pruneOrphanLinks removes links whose photo or species is gone. Databases
// created before the link table carried foreign keys may hold such rows, and
// the table rebuild that adds the constraints would reject them.
func pruneOrphanLinks(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasTable(&models.PhotoSpecies{}) || !migrator.HasTable(&models.Photo{}) || !migrator.HasTable(&models.Species{}) {
		return nil
	}
	result := db.Exec(`DELETE FROM bird_photo_species
		WHERE photo_id NOT IN (SELECT id FROM bird_photos)
		OR species_id NOT IN (SELECT id FROM bird_species)`)
	if result.Error != nil {
		return fmt.Errorf("failed to prune orphan links: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("Warning: removed %d links to deleted photos or species", result.RowsAffected)
	}
	return nil
}

// keyedTable describes a table whose identity is a case-folded name key
type keyedTable struct {
	model       interface{}
	table       string
	nameColumn  string
	keyColumn   string
	legacyIndex string // NOCASE unique index replaced by the key column
}

var keyedTables = []keyedTable{
	{&models.Species{}, "bird_species", "common_name", "common_name_key", "idx_species_common_name"},
	{&models.Photographer{}, "photographers", "name", "name_key", "idx_photographer_name"},
}

// backfillNameKeys fills the key column of rows written before it existed
// and drops the NOCASE index it replaces. A row whose folded name collides
// with another keeps a NULL key and is logged; it stays readable but cannot
// be resolved by name until the duplicate is merged by hand.
func backfillNameKeys(db *gorm.DB, t keyedTable) error {
	migrator := db.Migrator()
	if migrator.HasIndex(t.model, t.legacyIndex) {
		if err := migrator.DropIndex(t.model, t.legacyIndex); err != nil {
			return fmt.Errorf("failed to drop legacy index %s: %w", t.legacyIndex, err)
		}
		log.Printf("Dropped legacy index %s", t.legacyIndex)
	}

	var rows []struct {
		ID   uint
		Name string
	}
	err := db.Table(t.table).
		Select("id, " + t.nameColumn + " AS name").
		Where(t.keyColumn + " IS NULL OR " + t.keyColumn + " = ''").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to list unkeyed rows in %s: %w", t.table, err)
	}

	for _, row := range rows {
		err := db.Table(t.table).Where("id = ?", row.ID).Update(t.keyColumn, models.NameKey(row.Name)).Error
		if err == nil {
			continue
		}
		if IsUniqueViolation(err) {
			log.Printf("Warning: %s row %d ('%s') folds onto an existing name, leaving %s unset", t.table, row.ID, row.Name, t.keyColumn)
			continue
		}
		return fmt.Errorf("failed to backfill %s for %s row %d: %w", t.keyColumn, t.table, row.ID, err)
	}
	if len(rows) > 0 {
		log.Printf("Backfilled %s for %d %s rows", t.keyColumn, len(rows), t.table)
	}
	return nil
}

// Open initializes the database and migrates the schema in one step
func Open(dataSourceName string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := InitGormDB(dataSourceName, level)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrateModels(db); err != nil {
		Close(db)
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Warning: could not get sql.DB to close: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("Warning: error closing database: %v", err)
	}
}

// IsUniqueViolation reports whether err came from a unique constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err came from a foreign key
// constraint, such as linking to a row deleted in the meantime
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
