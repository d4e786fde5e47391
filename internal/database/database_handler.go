package database

import (
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proxysieve/internal/domain"
	"proxysieve/internal/support"
)

var DB *gorm.DB

type Config struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
}

type Option func(*Config)

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) { cfg.ExistingDB = db }
}

func WithDialector(dialector gorm.Dialector) Option {
	return func(cfg *Config) { cfg.Dialector = dialector }
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) { cfg.Logger = l }
}

func WithoutMigrations() Option {
	return func(cfg *Config) { cfg.AutoMigrate = false }
}

// DialectorFromEnv picks postgres when DATABASE_URL is set and falls back to
// a local sqlite file otherwise, so a standalone run needs no server.
func DialectorFromEnv() gorm.Dialector {
	if dsn := support.GetEnv("DATABASE_URL", ""); dsn != "" {
		return postgres.Open(dsn)
	}
	path := support.GetEnv("SQLITE_PATH", "data/proxysieve.db")
	return sqlite.Open(path)
}

// SetupDB opens the result store and migrates the record schema.
func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := Config{AutoMigrate: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.ExistingDB != nil:
		DB = cfg.ExistingDB
	case cfg.Dialector != nil:
		gormCfg := &gorm.Config{}
		if cfg.Logger != nil {
			gormCfg.Logger = cfg.Logger
		}
		db, err := gorm.Open(cfg.Dialector, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		DB = db
	default:
		return nil, fmt.Errorf("database: no dialector or existing connection provided")
	}

	if cfg.AutoMigrate {
		if err := DB.AutoMigrate(&domain.RunSummary{}, &domain.AcceptanceRecord{}); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Debug("Database migration completed")
	}

	return DB, nil
}
