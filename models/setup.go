package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite" // Sqlite driver based on CGO
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dentascope/utils"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// sqliteDSN Foreign keys are off by default in sqlite, cascades need them.
func sqliteDSN(filename string) string {
	if strings.Contains(filename, "?") {
		return filename + "&_foreign_keys=on"
	}
	return filename + "?_foreign_keys=on"
}

// mysqlDSN Normalize the DSN so DATETIME columns scan into time.Time
func mysqlDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	if parsed.Loc == nil {
		parsed.Loc = time.UTC
	}
	return parsed.FormatDSN(), nil
}

// OpenSqlite Open (and migrate) a sqlite database at filename
func OpenSqlite(filename string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(filename)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("cannot connect sqlite database at %s: %w", filename, err)
	}
	log.Info(fmt.Sprintf("Connecting sqlite database at %s", filename))
	return db, Migrate(db)
}

// OpenMysql Open (and migrate) a mysql database
func OpenMysql(dsn string) (*gorm.DB, error) {
	normalized, err := mysqlDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormmysql.Open(normalized), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("cannot connect mysql database: %w", err)
	}
	log.Info("Connecting mysql database")
	return db, Migrate(db)
}

// ConnectDataBase Connect to the database selected in the configuration
func ConnectDataBase(config *utils.Config) (*gorm.DB, error) {
	switch config.Database.Driver {
	case "sqlite":
		return OpenSqlite(config.Database.Sqlite.Filename)
	case "mysql":
		return OpenMysql(config.Database.Mysql.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}
}

// Migrate Create or update the tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Image{}, &Annotation{}, &Label{}); err != nil {
		return fmt.Errorf("cannot migrate database: %w", err)
	}
	return nil
}
