package scheduledb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/logging"
)

//go:embed schema.sql
var ddl string

// createDB opens the SQLite database and brings its schema up to date.
func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, err
	}

	// Pool settings first: each :memory: connection is a separate database.
	configureConnectionPool(db, config)

	ctx := context.Background()
	if err := configureSQLitePerformance(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	if err := performDatabaseMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}

func configureSQLitePerformance(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		name        string
		description string
	}{
		{"PRAGMA cache_size=-16000", "Set cache size to 16MB"},
		{"PRAGMA temp_store=MEMORY", "Store temporary data in memory"},
		{"PRAGMA busy_timeout=5000", "Wait up to 5s on a locked database"},
	}

	logger := slog.Default().With(slog.String("component", "sqlite_performance"))

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma.name); err != nil {
			logging.LogError(logger, fmt.Sprintf("Failed to set %s", pragma.description), err)
			return fmt.Errorf("failed to execute %s: %w", pragma.name, err)
		}
	}

	logging.LogOperation(logger, "sqlite_performance_settings_applied",
		slog.Int("pragma_count", len(pragmas)))
	return nil
}

func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// replaceTimetable swaps the stored timetable for the given rows in one
// transaction.
func (c *Client) replaceTimetable(ctx context.Context, departures []Departure, windows []ServiceWindow, meta ImportMetadatum) error {
	logger := slog.Default().With(slog.String("component", "timetable_import"))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "replace_timetable")

	qtx := c.Queries.WithTx(tx)
	if err := qtx.ClearDepartures(ctx); err != nil {
		return fmt.Errorf("error clearing departures: %w", err)
	}
	if err := qtx.ClearServiceWindows(ctx); err != nil {
		return fmt.Errorf("error clearing service windows: %w", err)
	}
	for _, d := range departures {
		if err := qtx.CreateDeparture(ctx, d); err != nil {
			return fmt.Errorf("unable to create departure: %w", err)
		}
	}
	for _, w := range windows {
		if err := qtx.CreateServiceWindow(ctx, w); err != nil {
			return fmt.Errorf("unable to create service window: %w", err)
		}
	}
	if err := qtx.UpsertImportMetadata(ctx, meta); err != nil {
		return fmt.Errorf("unable to record import metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logging.LogOperation(logger, "timetable_rows_inserted",
		slog.Int("departures", len(departures)),
		slog.Int("service_windows", len(windows)))
	return nil
}
