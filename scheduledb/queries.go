package scheduledb

import (
	"context"
)

const createDeparture = `
INSERT OR IGNORE INTO departures (bus_no, station, day_type, seconds)
VALUES (?, ?, ?, ?)
`

func (q *Queries) CreateDeparture(ctx context.Context, arg Departure) error {
	_, err := q.db.ExecContext(ctx, createDeparture, arg.BusNo, arg.Station, arg.DayType, arg.Seconds)
	return err
}

const createServiceWindow = `
INSERT INTO service_windows (bus_no, station, day_type, first_seconds, last_seconds, headway_seconds)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateServiceWindow(ctx context.Context, arg ServiceWindow) error {
	_, err := q.db.ExecContext(ctx, createServiceWindow,
		arg.BusNo, arg.Station, arg.DayType, arg.FirstSeconds, arg.LastSeconds, arg.HeadwaySeconds)
	return err
}

const nextDeparture = `
SELECT seconds
FROM departures
WHERE bus_no = ? AND station = ? AND day_type = ? AND seconds >= ?
ORDER BY seconds
LIMIT 1
`

type NextDepartureParams struct {
	BusNo   string
	Station string
	DayType string
	After   int64
}

// NextDeparture returns the first departure at or after arg.After, or
// sql.ErrNoRows when none remains.
func (q *Queries) NextDeparture(ctx context.Context, arg NextDepartureParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, nextDeparture, arg.BusNo, arg.Station, arg.DayType, arg.After)
	var seconds int64
	err := row.Scan(&seconds)
	return seconds, err
}

const listServiceWindows = `
SELECT bus_no, station, day_type, first_seconds, last_seconds, headway_seconds
FROM service_windows
WHERE bus_no = ? AND station = ? AND day_type = ?
ORDER BY first_seconds
`

type ListServiceWindowsParams struct {
	BusNo   string
	Station string
	DayType string
}

func (q *Queries) ListServiceWindows(ctx context.Context, arg ListServiceWindowsParams) ([]ServiceWindow, error) {
	rows, err := q.db.QueryContext(ctx, listServiceWindows, arg.BusNo, arg.Station, arg.DayType)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []ServiceWindow
	for rows.Next() {
		var i ServiceWindow
		if err := rows.Scan(
			&i.BusNo,
			&i.Station,
			&i.DayType,
			&i.FirstSeconds,
			&i.LastSeconds,
			&i.HeadwaySeconds,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const hasSchedule = `
SELECT EXISTS (SELECT 1 FROM departures WHERE bus_no = ?1 AND station = ?2)
    OR EXISTS (SELECT 1 FROM service_windows WHERE bus_no = ?1 AND station = ?2)
`

// HasSchedule reports whether any day type has timetable rows for the bus at
// the station.
func (q *Queries) HasSchedule(ctx context.Context, busNo, station string) (bool, error) {
	row := q.db.QueryRowContext(ctx, hasSchedule, busNo, station)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const getImportMetadata = `
SELECT file_hash, file_source, imported_at
FROM import_metadata
WHERE id = 1
`

func (q *Queries) GetImportMetadata(ctx context.Context) (ImportMetadatum, error) {
	row := q.db.QueryRowContext(ctx, getImportMetadata)
	var i ImportMetadatum
	err := row.Scan(&i.FileHash, &i.FileSource, &i.ImportedAt)
	return i, err
}

const upsertImportMetadata = `
INSERT INTO import_metadata (id, file_hash, file_source, imported_at)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    file_hash = excluded.file_hash,
    file_source = excluded.file_source,
    imported_at = excluded.imported_at
`

func (q *Queries) UpsertImportMetadata(ctx context.Context, arg ImportMetadatum) error {
	_, err := q.db.ExecContext(ctx, upsertImportMetadata, arg.FileHash, arg.FileSource, arg.ImportedAt)
	return err
}

func (q *Queries) ClearDepartures(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM departures`)
	return err
}

func (q *Queries) ClearServiceWindows(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM service_windows`)
	return err
}
