package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMySQL opens a GORM handle on the MySQL DSN, retrying while the server comes up.
func NewMySQL(ctx context.Context, dsn, logLevel string, log *slog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}

	gormConfig := &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormLogger(logLevel),
	}

	var db *gorm.DB
	err := withRetry(ctx, "mysql", log, func(ctx context.Context) error {
		opened, err := gorm.Open(mysql.Open(dsn), gormConfig)
		if err != nil {
			return err
		}
		sqlDB, err := opened.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		db = opened
		return nil
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func gormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "debug", "info":
		logLevel = logger.Info
	case "warn":
		logLevel = logger.Warn
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Error
	}
	return logger.Default.LogMode(logLevel)
}
