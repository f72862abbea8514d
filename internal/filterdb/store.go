// Package filterdb persists filter runs and per-frame classification
// statistics to SQLite.
package filterdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// FilterDB wraps the SQLite database holding filter run records.
type FilterDB struct {
	*sql.DB
}

// NewFilterDB opens (or creates) the database at path and applies any
// pending schema migrations.
func NewFilterDB(path string) (*FilterDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	fdb := &FilterDB{db}
	if err := fdb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	log.Println("initialized filter database schema")
	return fdb, nil
}

func (fdb *FilterDB) newMigrate() (*migrate.Migrate, error) {
	driver, err := sqlitemigrate.WithInstance(fdb.DB, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite", driver)
}

// MigrateUp runs all pending migrations up to the latest version. Returns
// nil if the schema is already current.
func (fdb *FilterDB) MigrateUp() error {
	m, err := fdb.newMigrate()
	if err != nil {
		return err
	}
	// The migrate instance is not closed here: closing it would close the
	// underlying connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// InsertRun records the start of a filter run.
func (fdb *FilterDB) InsertRun(r *FilterRun) error {
	stmt := `INSERT INTO filter_runs (run_id, sensor_id, created_unix_nanos, params_json, status)
			 VALUES (?, ?, ?, ?, ?)`
	_, err := fdb.Exec(stmt, r.RunID, r.SensorID, r.CreatedUnixNanos, r.ParamsJSON, r.Status)
	return err
}

// InsertFrame records one frame's classification statistics.
func (fdb *FilterDB) InsertFrame(runID string, f *FrameStats) error {
	stmt := `INSERT INTO filter_frames (run_id, frame_index, encoding, self_pixels, shadow_pixels, background_pixels, duration_nanos, created_unix_nanos)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := fdb.Exec(stmt, runID, f.FrameIndex, f.Encoding, f.SelfPixels, f.ShadowPixels, f.BackgroundPixels, f.DurationNanos, f.CreatedUnixNanos)
	return err
}

// FinishRun marks a run complete and stores its summary.
func (fdb *FilterDB) FinishRun(runID, status, summaryJSON string, frameCount int, finishedUnixNanos int64) error {
	stmt := `UPDATE filter_runs SET status = ?, summary_json = ?, frame_count = ?, finished_unix_nanos = ? WHERE run_id = ?`
	res, err := fdb.Exec(stmt, status, summaryJSON, frameCount, finishedUnixNanos, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// GetRun fetches one run record.
func (fdb *FilterDB) GetRun(runID string) (*FilterRun, error) {
	row := fdb.QueryRow(`SELECT run_id, sensor_id, created_unix_nanos, finished_unix_nanos, params_json, status, frame_count, summary_json
						 FROM filter_runs WHERE run_id = ?`, runID)
	var r FilterRun
	var finished sql.NullInt64
	var summary sql.NullString
	if err := row.Scan(&r.RunID, &r.SensorID, &r.CreatedUnixNanos, &finished, &r.ParamsJSON, &r.Status, &r.FrameCount, &summary); err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedUnixNanos = finished.Int64
	}
	if summary.Valid {
		r.SummaryJSON = summary.String
	}
	return &r, nil
}

// ListFrames returns a run's frame statistics ordered by frame index.
func (fdb *FilterDB) ListFrames(runID string) ([]FrameStats, error) {
	rows, err := fdb.Query(`SELECT frame_index, encoding, self_pixels, shadow_pixels, background_pixels, duration_nanos, created_unix_nanos
							FROM filter_frames WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameStats
	for rows.Next() {
		var f FrameStats
		if err := rows.Scan(&f.FrameIndex, &f.Encoding, &f.SelfPixels, &f.ShadowPixels, &f.BackgroundPixels, &f.DurationNanos, &f.CreatedUnixNanos); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
