package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"library-api/pkg/config"
	"library-api/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const memoryPath = ":memory:"

func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Engine {
	case config.EngineSQLite:
		return sqlite.Open(sqliteDSN(cfg.SQLitePath)), nil
	case config.EnginePostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database engine %q", cfg.Engine)
}

func sqliteDSN(path string) string {
	if path == "" || path == memoryPath {
		return "file::memory:?_foreign_keys=1"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_foreign_keys=1&_busy_timeout=5000"
}

// Open connects to the configured engine and tunes the pool.
func Open(cfg config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	if cfg.Engine == config.EngineSQLite {
		// SQLite has a single writer, and an in-memory database lives only
		// as long as its one connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// Connect opens the database, retrying while the server comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, debug bool, maxRetries int, wait time.Duration) (*gorm.DB, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	slog.Info("Connecting to database", "engine", cfg.Engine, "host", cfg.Host, "port", cfg.Port, "dbname", cfg.Name)

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := Open(cfg, debug)
		if err == nil {
			err = Ping(ctx, db)
			if err == nil {
				slog.Info("Database connected successfully")
				return db, nil
			}
		}
		lastErr = err
		slog.Warn("Database connection attempt failed", "attempt", i+1, "max", maxRetries, "error", err)
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("connect to database: %w", lastErr)
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

// Migrate creates or updates the schema and makes sure every model
// permission exists.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return SyncPermissions(ctx, db)
}

func SyncPermissions(ctx context.Context, db *gorm.DB) error {
	for _, model := range models.PermissionModels {
		for _, action := range models.PermissionActions {
			perm := models.Permission{
				Codename: models.Codename(action, model),
				Name:     fmt.Sprintf("Can %s %s", action, model),
			}
			err := db.WithContext(ctx).
				Where(models.Permission{Codename: perm.Codename}).
				Attrs(models.Permission{Name: perm.Name}).
				FirstOrCreate(&perm).Error
			if err != nil {
				return fmt.Errorf("sync permission %s: %w", perm.Codename, err)
			}
		}
	}
	return nil
}
