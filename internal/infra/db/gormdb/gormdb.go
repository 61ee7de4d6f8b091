package gormdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
)

// Open connects to postgres or sqlite and migrates the schema.
func Open(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	var (
		db  *gorm.DB
		err error
	)
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("gormdb: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&RoomModel{}, &BookingModel{}, &OutboxModel{}, &InboxModel{})
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OperationError records which store operation failed.
type OperationError struct {
	Subject string
	Code    string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("gormdb.%s.%s: %v", e.Subject, e.Code, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func wrapStoreError(subject, code string, err error) error {
	return &OperationError{Subject: subject, Code: code, Err: err}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
