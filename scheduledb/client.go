package scheduledb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"busarrival.dkucouncil.org/internal/logging"
)

// Client owns the timetable database.
type Client struct {
	config        Config
	DB            *sql.DB
	Queries       *Queries
	importRuntime time.Duration
}

// NewClient opens the database described by config and migrates its schema.
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.verbose {
		slog.Default().Info("timetable tables ready", slog.String("path", config.DBPath))
	}

	return &Client{
		config:  config,
		DB:      db,
		Queries: New(db),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

// ImportRuntime is the duration of the last import that wrote rows.
func (c *Client) ImportRuntime() time.Duration {
	return c.importRuntime
}

// ImportFromFile loads a YAML timetable from path. An import whose content and
// source match the last one is skipped.
func (c *Client) ImportFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Import(ctx, data, path)
}

// Import replaces the stored timetable with the document in data.
func (c *Client) Import(ctx context.Context, data []byte, source string) error {
	logger := slog.Default().With(slog.String("component", "timetable_importer"))

	hash := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hash[:])

	existing, err := c.Queries.GetImportMetadata(ctx)
	switch {
	case err == nil:
		if existing.FileHash == hashStr && existing.FileSource == source {
			logging.LogOperation(logger, "timetable_unchanged_skipping_import",
				slog.String("hash", hashStr[:8]))
			return nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("error checking import metadata: %w", err)
	}

	file, err := ParseScheduleFile(data)
	if err != nil {
		return err
	}
	departures, windows := file.rows()

	start := time.Now()
	err = c.replaceTimetable(ctx, departures, windows, ImportMetadatum{
		FileHash:   hashStr,
		FileSource: source,
		ImportedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	c.importRuntime = time.Since(start)

	logging.LogOperation(logger, "timetable_import_completed",
		slog.Duration("duration", c.importRuntime),
		slog.String("source", source),
		slog.Int("entries", len(file.Schedules)))
	return nil
}
