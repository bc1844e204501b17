package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/dataset"
	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/validation"
)

// TrailingWindow is subtracted from the latest date to find the tobs cutoff.
// It is a fixed 365 days, not a calendar year, so a window spanning
// 29 February covers one day less than a year.
const TrailingWindow = 365 * 24 * time.Hour

const (
	opPrecipitation = "precipitation_series"
	opStations      = "station_list"
	opTrailingTobs  = "trailing_year_temperatures"
	opSummary       = "temperature_summary"
)

// Engine answers the climate queries. It holds no state besides the accessor,
// so one Engine serves concurrent requests.
type Engine struct {
	data dataset.Accessor
}

// NewEngine returns an Engine reading from data.
func NewEngine(data dataset.Accessor) *Engine {
	return &Engine{data: data}
}

// PrecipitationSeries returns every measurement with a precipitation value,
// date ascending. Several stations reporting the same date yield several entries.
func (e *Engine) PrecipitationSeries(ctx context.Context) ([]models.PrecipitationReading, error) {
	start := time.Now()
	out := []models.PrecipitationReading{}
	for m, err := range e.data.AllMeasurementsOrderedByDate(ctx) {
		if err != nil {
			return nil, e.fail(ctx, opPrecipitation, start, err)
		}
		if m.Precipitation == nil {
			continue
		}
		out = append(out, models.PrecipitationReading{
			Date:          m.Date.Format(models.DateLayout),
			Precipitation: *m.Precipitation,
		})
	}
	observability.RecordQuery(opPrecipitation, "ok", start, len(out))
	return out, nil
}

// StationList returns the distinct station ids that appear in measurements, sorted.
func (e *Engine) StationList(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := e.data.DistinctStationIDs(ctx)
	if err != nil {
		return nil, e.fail(ctx, opStations, start, err)
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	observability.RecordQuery(opStations, "ok", start, len(out))
	return out, nil
}

// TrailingYearTemperatures returns the temperature observations dated after
// MaxDate - TrailingWindow, date ascending. An empty dataset fails with
// dataset.ErrEmptyDataset.
func (e *Engine) TrailingYearTemperatures(ctx context.Context) ([]models.TemperatureObservation, error) {
	start := time.Now()
	last, err := e.data.MaxDate(ctx)
	if err != nil {
		return nil, e.fail(ctx, opTrailingTobs, start, err)
	}
	cutoff := last.Add(-TrailingWindow)
	// date > cutoff on whole dates is date >= cutoff + 1 day.
	from := cutoff.AddDate(0, 0, 1)

	out := []models.TemperatureObservation{}
	for m, err := range e.data.MeasurementsInRange(ctx, &from, &last) {
		if err != nil {
			return nil, e.fail(ctx, opTrailingTobs, start, err)
		}
		if m.Temperature == nil {
			continue
		}
		out = append(out, models.TemperatureObservation{
			Date:        m.Date.Format(models.DateLayout),
			Temperature: *m.Temperature,
		})
	}
	observability.LoggerFromContext(ctx).Debug("trailing window",
		zap.String("last_date", last.Format(models.DateLayout)),
		zap.String("cutoff", cutoff.Format(models.DateLayout)),
		zap.Int("observations", len(out)))
	observability.RecordQuery(opTrailingTobs, "ok", start, len(out))
	return out, nil
}

// TemperatureSummary returns min, mean and max temperature for dates >= start
// and, when end is non-nil, <= end. Rows without a temperature are ignored;
// if none remain, TMin, TAvg and TMax are nil.
func (e *Engine) TemperatureSummary(ctx context.Context, startDate string, endDate *string) (models.TemperatureSummary, error) {
	start := time.Now()
	r, err := validation.ParseRange(startDate, endDate)
	if err != nil {
		return models.TemperatureSummary{}, e.fail(ctx, opSummary, start, err)
	}

	var agg aggregate
	for m, err := range e.data.MeasurementsInRange(ctx, &r.Start, r.End) {
		if err != nil {
			return models.TemperatureSummary{}, e.fail(ctx, opSummary, start, err)
		}
		if m.Temperature != nil {
			agg.add(*m.Temperature)
		}
	}

	summary := models.TemperatureSummary{
		Start: r.Start.Format(models.DateLayout),
		Count: agg.n,
	}
	if r.End != nil {
		summary.End = r.End.Format(models.DateLayout)
	}
	summary.TMin, summary.TAvg, summary.TMax = agg.result()
	observability.RecordQuery(opSummary, "ok", start, agg.n)
	return summary, nil
}

// fail records the outcome for err and returns it wrapped with the operation name.
func (e *Engine) fail(ctx context.Context, op string, start time.Time, err error) error {
	outcome := "error"
	switch {
	case errors.Is(err, validation.ErrInvalidDate), errors.Is(err, validation.ErrInvalidRange):
		outcome = "invalid"
	case errors.Is(err, dataset.ErrEmptyDataset):
		outcome = "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	}
	observability.RecordQuery(op, outcome, start, 0)
	if outcome == "error" {
		observability.LoggerFromContext(ctx).Error("query failed", zap.String("operation", op), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
