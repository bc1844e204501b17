package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
)

var (
	// ErrStorageUnavailable is returned when the dataset cannot be opened or read.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEmptyDataset is returned by MaxDate when the measurement table has no rows.
	ErrEmptyDataset = errors.New("dataset is empty")
)

// Accessor is read-only access to the measurement and station tables.
// Sequences are lazy and restartable: each range runs a fresh query and
// releases its connection when the loop ends, including on early break.
type Accessor interface {
	AllMeasurementsOrderedByDate(ctx context.Context) iter.Seq2[models.Measurement, error]
	DistinctStationIDs(ctx context.Context) ([]string, error)
	MeasurementsInRange(ctx context.Context, from, to *time.Time) iter.Seq2[models.Measurement, error]
	MaxDate(ctx context.Context) (time.Time, error)
}

// Options configures Open.
type Options struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogQueries wraps the driver so every statement is logged at debug level.
	LogQueries bool
	Logger     *zap.Logger
}

// SQLiteDataset implements Accessor over a read-only SQLite file.
type SQLiteDataset struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens the dataset read-only, applies pool limits and verifies that the
// measurement table is readable. Every failure wraps ErrStorageUnavailable.
func Open(ctx context.Context, opts Options) (*SQLiteDataset, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: dataset path is required", ErrStorageUnavailable)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := buildDSN(opts.Path)
	var db *sql.DB
	if opts.LogQueries {
		db = sql.OpenDB(newLoggingConnector(dsn, logger))
	} else {
		var err error
		db, err = sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrStorageUnavailable, opts.Path, err)
		}
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	d := &SQLiteDataset{db: db, logger: logger}
	if err := d.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	var probe int
	if err := db.QueryRowContext(ctx, `SELECT 1 FROM measurement LIMIT 1`).Scan(&probe); err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = db.Close()
		return nil, storageError("open", err)
	}
	return d, nil
}

// Ping checks that the dataset file is still reachable.
func (d *SQLiteDataset) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

// Close releases every pooled connection.
func (d *SQLiteDataset) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// AllMeasurementsOrderedByDate yields every measurement, date ascending,
// ties in storage order.
func (d *SQLiteDataset) AllMeasurementsOrderedByDate(ctx context.Context) iter.Seq2[models.Measurement, error] {
	return d.scan(ctx, "all_measurements", allMeasurementsSQL)
}

// MeasurementsInRange yields measurements with from <= date <= to; a nil
// bound is open.
func (d *SQLiteDataset) MeasurementsInRange(ctx context.Context, from, to *time.Time) iter.Seq2[models.Measurement, error] {
	return d.scan(ctx, "measurements_in_range", measurementsInRangeSQL, nullableDate(from), nullableDate(to))
}

// DistinctStationIDs returns each station id present in the measurement table once.
func (d *SQLiteDataset) DistinctStationIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, distinctStationsSQL)
	if err != nil {
		return nil, storageError("distinct_stations", err)
	}
	defer d.closeRows("distinct_stations", rows)

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("distinct_stations", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("distinct_stations", err)
	}
	return out, nil
}

// MaxDate returns the latest measurement date, or ErrEmptyDataset.
func (d *SQLiteDataset) MaxDate(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	if err := d.db.QueryRowContext(ctx, maxDateSQL).Scan(&raw); err != nil {
		return time.Time{}, storageError("max_date", err)
	}
	if !raw.Valid {
		return time.Time{}, ErrEmptyDataset
	}
	t, err := parseStoredDate(raw.String)
	if err != nil {
		return time.Time{}, storageError("max_date", err)
	}
	return t, nil
}

// Stats counts rows and reports the covered date span. FirstDate and
// LastDate are zero for an empty measurement table.
func (d *SQLiteDataset) Stats(ctx context.Context) (models.DatasetStats, error) {
	var (
		stats       models.DatasetStats
		first, last sql.NullString
	)
	err := d.db.QueryRowContext(ctx, measurementStatsSQL).Scan(&stats.Measurements, &stats.MeasuredStations, &first, &last)
	if err != nil {
		return models.DatasetStats{}, storageError("stats", err)
	}
	if err := d.db.QueryRowContext(ctx, stationCountSQL).Scan(&stats.Stations); err != nil {
		return models.DatasetStats{}, storageError("stats", err)
	}
	if first.Valid {
		if stats.FirstDate, err = parseStoredDate(first.String); err != nil {
			return models.DatasetStats{}, storageError("stats", err)
		}
	}
	if last.Valid {
		if stats.LastDate, err = parseStoredDate(last.String); err != nil {
			return models.DatasetStats{}, storageError("stats", err)
		}
	}
	return stats, nil
}

func (d *SQLiteDataset) scan(ctx context.Context, op, query string, args ...any) iter.Seq2[models.Measurement, error] {
	return func(yield func(models.Measurement, error) bool) {
		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.Measurement{}, storageError(op, err))
			return
		}
		defer d.closeRows(op, rows)

		for rows.Next() {
			m, err := scanMeasurement(rows)
			if err != nil {
				yield(models.Measurement{}, storageError(op, err))
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Measurement{}, storageError(op, err))
		}
	}
}

func (d *SQLiteDataset) closeRows(op string, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		d.logger.Warn("close rows", zap.String("operation", op), zap.Error(err))
	}
}

func scanMeasurement(rows *sql.Rows) (models.Measurement, error) {
	var (
		m          models.Measurement
		date       string
		prcp, tobs sql.NullFloat64
	)
	if err := rows.Scan(&m.StationID, &date, &prcp, &tobs); err != nil {
		return models.Measurement{}, err
	}
	t, err := parseStoredDate(date)
	if err != nil {
		return models.Measurement{}, err
	}
	m.Date = t
	if prcp.Valid {
		v := prcp.Float64
		m.Precipitation = &v
	}
	if tobs.Valid {
		v := tobs.Float64
		m.Temperature = &v
	}
	return m, nil
}

func parseStoredDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt date %q: %w", s, err)
	}
	return t, nil
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(models.DateLayout)
}

// storageError wraps err with ErrStorageUnavailable and counts it. Context
// cancellation is passed through unwrapped so abandoned requests are not
// reported as storage failures.
func storageError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	observability.DatasetErrorsTotal.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
