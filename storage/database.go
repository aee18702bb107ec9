package storage

import (
	"context"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

// Open connects to the database of the given driver. The returned handle pools its connections and is meant to be
// shared for the whole process lifetime.
func Open(driver string, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Errorf("Unsupported database driver '%s'", driver)
	}

	sigolo.Debugf("Connect to %s database", driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   &gormLogger{slowThreshold: time.Second},
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to connect to %s database", driver)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	sigolo.Info("Migrate database tables")
	migrationStartTime := time.Now()

	err := db.AutoMigrate(
		&User{},
		&Template{},
		&Area{},
		&Dataset{},
		&Watch{},
	)
	if err != nil {
		return errors.Wrap(err, "Auto migration of database tables failed")
	}

	sigolo.Infof("Finished migration in %s", time.Since(migrationStartTime))
	return nil
}

// gormLogger forwards the gorm log output to sigolo. SQL statements are only logged on trace level.
type gormLogger struct {
	slowThreshold time.Duration
}

func (l *gormLogger) LogMode(logger.LogLevel) logger.Interface {
	return l
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	sigolo.Debugf(msg, args...)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	sigolo.Warnf(msg, args...)
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	sigolo.Errorf(msg, args...)
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	duration := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		sigolo.Errorf("SQL error after %s (%d rows): %s\n%s", duration, rows, err.Error(), sql)
	case duration > l.slowThreshold:
		sql, rows := fc()
		sigolo.Debugf("Slow SQL took %s (%d rows): %s", duration, rows, sql)
	case sigolo.ShouldLogTrace():
		sql, rows := fc()
		sigolo.Tracef("SQL took %s (%d rows): %s", duration, rows, sql)
	}
}
