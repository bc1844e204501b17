package models

import "time"

// DateLayout is the calendar date format used in storage, paths and responses.
const DateLayout = "2006-01-02"

// Measurement is one row of the measurement table. Precipitation and
// Temperature are nil when the source row has no value.
type Measurement struct {
	StationID     string
	Date          time.Time
	Precipitation *float64
	Temperature   *float64
}

// DatasetStats summarizes the dataset snapshot; logged at startup.
type DatasetStats struct {
	Measurements     int
	Stations         int
	MeasuredStations int
	FirstDate        time.Time
	LastDate         time.Time
}

// PrecipitationReading is one entry of GET /api/v1.0/precipitation.
type PrecipitationReading struct {
	Date          string  `json:"date"`
	Precipitation float64 `json:"prcp"`
}

// TemperatureObservation is one entry of GET /api/v1.0/tobs.
type TemperatureObservation struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"tobs"`
}

// TemperatureSummary is the min/avg/max aggregate over a date range.
// TMin, TAvg and TMax are nil when no temperature was observed in the range.
type TemperatureSummary struct {
	Start string
	End   string // empty for an open-ended range
	TMin  *float64
	TAvg  *float64
	TMax  *float64
	Count int
}

// StartSummaryResponse is the body of GET /api/v1.0/{start}.
type StartSummaryResponse struct {
	Date string   `json:"date"`
	TMin *float64 `json:"tmin"`
	TAvg *float64 `json:"tavg"`
	TMax *float64 `json:"tmax"`
}

// RangeSummaryResponse is the body of GET /api/v1.0/{start}/{end}.
type RangeSummaryResponse struct {
	DateRange string   `json:"date_range"`
	TMin      *float64 `json:"tmin"`
	TAvg      *float64 `json:"tavg"`
	TMax      *float64 `json:"tmax"`
}
