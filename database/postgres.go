package database

import (
	"fmt"

	"messenger-sync/config"
	"messenger-sync/model"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the database selected by DB_DRIVER and migrates the schema.
func Connect(s *config.Settings, log *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch s.DBDriver {
	case "sqlite":
		db, err = OpenSQLite(s.SQLitePath)
	default:
		db, err = gorm.Open(postgres.Open(s.PostgresDSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", s.DBDriver, err)
	}
	log.Info("connection opened to database", zap.String("driver", s.DBDriver))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database migrated")

	return db, nil
}

// OpenSQLite opens a pure-Go SQLite database. ":memory:" databases are pinned
// to a single connection so every query sees the same schema.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Message{},
		&model.Reaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
