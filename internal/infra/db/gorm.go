package db

import (
	"fmt"
	"time"

	"github.com/NasaVasa/pricealert/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type gormZapWriter struct {
	logger *zap.Logger
}

func (w gormZapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), NewGormConfig(log))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// NewGormConfig logs through zap and translates driver errors into gorm sentinels.
func NewGormConfig(log *zap.Logger) *gorm.Config {
	gormLogger := logger.New(
		gormZapWriter{logger: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{Logger: gormLogger, TranslateError: true}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&userModel{}, &alertModel{})
}
