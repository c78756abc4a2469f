package database

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hyxhhh1013/Myproject-sub000/models"
)

// PhotoOrderSequence names the counter that hands out display orders.
const PhotoOrderSequence = "photo_order"

// sqliteDefaults serialize writers through BEGIN IMMEDIATE and wait on a busy
// database instead of failing lock upgrades.
const sqliteDefaults = "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"

// sqliteDriverName is go-sqlite3 with lower() replaced by a Unicode-aware
// version. The built-in only folds ASCII, so "École" would never match "école".
const sqliteDriverName = "sqlite3_unicode"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

// unicodeLower passes NULL and non-text values through unchanged.
func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	default:
		return v
	}
}

// InitGormDB initializes and returns a GORM database instance for the given driver.
// MySQL DSNs need parseTime=true.
func InitGormDB(driver, dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.New(sqlite.Config{DriverName: sqliteDriverName, DSN: SQLiteDSN(dsn)})
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
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

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("database initialized", "driver", driver)
	return db, nil
}

// SQLiteDSN appends the connection defaults unless the DSN already carries options.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?" + sqliteDefaults
}

// AutoMigrateModels migrates the catalog schema and seeds the order sequence.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.PhotoCategory{},
		&models.Tag{},
		&models.Photo{},
		&models.Sequence{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	for _, stmt := range dialectFixups(db.Dialector.Name()) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema fixup %q: %w", stmt, err)
		}
	}
	if err := seedSequences(db); err != nil {
		return err
	}
	slog.Info("GORM AutoMigrate completed")
	return nil
}

// dialectFixups returns schema statements AutoMigrate cannot express portably.
// Tag names are matched exactly, which MySQL's default case-insensitive
// collation would break for "Sunset" and "sunset".
func dialectFixups(dialect string) []string {
	if dialect != "mysql" {
		return nil
	}
	return []string{
		"ALTER TABLE tags MODIFY name VARCHAR(191) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL",
	}
}

// seedSequences starts the order counter at the current maximum so existing
// catalogs keep their ordering.
func seedSequences(db *gorm.DB) error {
	var maxOrder int64
	err := db.Model(&models.Photo{}).Select("COALESCE(MAX(order_index), 0)").Scan(&maxOrder).Error
	if err != nil {
		return fmt.Errorf("failed to read max display order: %w", err)
	}
	err = db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Sequence{Name: PhotoOrderSequence, Value: maxOrder}).Error
	if err != nil {
		return fmt.Errorf("failed to seed sequence %s: %w", PhotoOrderSequence, err)
	}
	return nil
}

// Ping checks the underlying connection.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
