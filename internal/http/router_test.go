package http

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/dataset"
	"github.com/kjstillabower/climate-api/internal/query"
	"github.com/kjstillabower/climate-api/internal/testhelpers"
)

// newDatasetRouter wires the real accessor and engine over a fixture file.
func newDatasetRouter(t *testing.T, rows []testhelpers.Row) http.Handler {
	t.Helper()
	data, err := dataset.Open(context.Background(), dataset.Options{Path: testhelpers.WriteDataset(t, rows), MaxOpenConns: 2, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("dataset.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = data.Close() })
	h := NewHandler(query.NewEngine(data), data, nil, zap.NewNop())
	return NewRouter(h, RouterOptions{})
}

var threeRowScenario = []testhelpers.Row{
	{Station: "S1", Date: "2017-08-23", Prcp: 0.0, Tobs: 78.0},
	{Station: "S2", Date: "2017-08-23", Prcp: 0.45, Tobs: 80.0},
	{Station: "S1", Date: "2017-08-22", Prcp: nil, Tobs: 79.0},
}

// TestRouter_ThreeRowScenario exercises every query endpoint end to end over SQLite.
func TestRouter_ThreeRowScenario(t *testing.T) {
	router := newDatasetRouter(t, threeRowScenario)

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1.0/precipitation", `[{"date":"2017-08-23","prcp":0},{"date":"2017-08-23","prcp":0.45}]`},
		{"/api/v1.0/stations", `["S1","S2"]`},
		{"/api/v1.0/tobs", `[{"date":"2017-08-22","tobs":79},{"date":"2017-08-23","tobs":78},{"date":"2017-08-23","tobs":80}]`},
		{"/api/v1.0/2017-08-22", `{"date":"2017-08-22","tmin":78,"tavg":79,"tmax":80}`},
		{"/api/v1.0/2017-08-23/2017-08-23", `{"date_range":"2017-08-23 - 2017-08-23","tmin":78,"tavg":79,"tmax":80}`},
		{"/api/v1.0/2018-01-01", `{"date":"2018-01-01","tmin":null,"tavg":null,"tmax":null}`},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			w := serve(t, router, http.MethodGet, tc.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
			}
			if got := strings.TrimSpace(w.Body.String()); got != tc.want {
				t.Errorf("body = %s\nwant   %s", got, tc.want)
			}
		})
	}
}

func TestRouter_ValidationErrors(t *testing.T) {
	router := newDatasetRouter(t, threeRowScenario)

	tests := []struct {
		path     string
		wantCode string
	}{
		{"/api/v1.0/2017-13-01", "INVALID_DATE"},
		{"/api/v1.0/yesterday", "INVALID_DATE"},
		{"/api/v1.0/2017-08-23/2017-02-30", "INVALID_DATE"},
		{"/api/v1.0/2017-08-23/2017-08-01", "INVALID_RANGE"},
	}
	for _, tc := range tests {
		w := serve(t, router, http.MethodGet, tc.path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want %d", tc.path, w.Code, http.StatusBadRequest)
			continue
		}
		if got := decodeError(t, w).Error.Code; got != tc.wantCode {
			t.Errorf("GET %s code = %q, want %q", tc.path, got, tc.wantCode)
		}
	}
}

func TestRouter_EmptyDataset(t *testing.T) {
	router := newDatasetRouter(t, nil)

	if w := serve(t, router, http.MethodGet, "/api/v1.0/tobs"); w.Code != http.StatusNotFound || decodeError(t, w).Error.Code != "NO_DATA" {
		t.Errorf("GET /api/v1.0/tobs = %d %s, want 404 NO_DATA", w.Code, w.Body.String())
	}
	for _, path := range []string{"/api/v1.0/precipitation", "/api/v1.0/stations"} {
		w := serve(t, router, http.MethodGet, path)
		if got := strings.TrimSpace(w.Body.String()); w.Code != http.StatusOK || got != "[]" {
			t.Errorf("GET %s = %d %s, want 200 []", path, w.Code, got)
		}
	}
}
