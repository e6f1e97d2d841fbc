package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coachsim/internal/config"
)

// ConnectState reports the outcome of the startup readiness check. It is
// returned to the caller instead of being tracked in package-level variables
// so the listener-bind step can inspect it explicitly.
type ConnectState struct {
	Available bool
	Attempts  int
}

// Open initializes the PostgreSQL connection pool without requiring the
// server to be reachable yet; readiness is probed separately by WaitReady.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Warn),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// WaitReady pings until the database answers or the attempt budget is spent,
// sleeping delay between attempts. Exhausting the budget is not an error:
// the service binds its listener regardless and reports availability via the
// returned state.
func WaitReady(ctx context.Context, db *gorm.DB, attempts int, delay time.Duration, log *slog.Logger) ConnectState {
	ping := func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return waitReady(ctx, ping, attempts, delay, log)
}

func waitReady(ctx context.Context, ping func() error, attempts int, delay time.Duration, log *slog.Logger) ConnectState {
	if log == nil {
		log = slog.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}

	state := ConnectState{}
	for i := 1; i <= attempts; i++ {
		state.Attempts = i

		err := ping()
		if err == nil {
			state.Available = true
			log.Info("database connection ready", slog.Int("attempt", i))
			return state
		}

		log.Warn("database not reachable",
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)

		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			log.Warn("database readiness check cancelled", slog.Any("error", ctx.Err()))
			return state
		case <-time.After(delay):
		}
	}

	log.Error("database unreachable after all attempts; starting anyway",
		slog.Int("attempts", state.Attempts),
	)
	return state
}

// Migrate creates or updates the schema for all persisted entities.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Item{},
		&Scenario{},
		&ScenarioFile{},
		&Simulation{},
	)
}
