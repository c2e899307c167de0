package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/forum/models"
)

var db *gorm.DB

// InitDatabase opens the configured store and runs the one-time schema migration.
func InitDatabase() *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	var err error
	db, err = OpenDatabase(cfg.DBDriver, cfg.DBDSN, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}
	return db
}

// OpenDatabase connects to driver ("sqlite", "mysql" or "postgres") and sizes the pool.
func OpenDatabase(driver, dsn, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(dsn))
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	// Raise the slow-sql threshold to reduce noise; SQL is only echoed at debug
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if driver == "sqlite" || driver == "" {
		// sqlite has a single writer; one pooled connection serializes transactions
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return gdb, nil
}

// Migrate creates or extends every table. It is idempotent and runs once at
// startup, never on the request path.
func Migrate(gdb *gorm.DB) error {
	for _, m := range models.All() {
		if err := gdb.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migration failed for %T: %w", m, err)
		}
	}
	if err := backfillPostFolds(gdb); err != nil {
		return fmt.Errorf("backfill post search columns: %w", err)
	}
	return nil
}

// backfillPostFolds fills the search columns of posts written before they existed.
func backfillPostFolds(gdb *gorm.DB) error {
	var batch []models.Post
	return gdb.Model(&models.Post{}).
		Select("id", "title", "body").
		Where("title_fold IS NULL OR body_fold IS NULL").
		FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
			for _, p := range batch {
				err := gdb.Model(&models.Post{}).Where("id = ?", p.ID).UpdateColumns(map[string]interface{}{
					"title_fold": models.Fold(p.Title),
					"body_fold":  models.Fold(p.Body),
				}).Error
				if err != nil {
					return err
				}
			}
			return nil
		}).Error
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "forum.db"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_foreign_keys") {
		dsn += sep + "_foreign_keys=on"
		sep = "&"
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		dsn += sep + "_busy_timeout=5000"
	}
	return dsn
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// DB provides access to the initialized gorm DB instance.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}
