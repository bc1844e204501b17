// Package testhelpers builds SQLite datasets for tests.
package testhelpers

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Schema matches the measurement and station tables of hawaii.sqlite.
const Schema = `
CREATE TABLE measurement (
  id      INTEGER PRIMARY KEY,
  station TEXT,
  date    TEXT,
  prcp    FLOAT,
  tobs    FLOAT
);
CREATE TABLE station (
  id        INTEGER PRIMARY KEY,
  station   TEXT,
  name      TEXT,
  latitude  FLOAT,
  longitude FLOAT,
  elevation FLOAT
);
`

// Row is one measurement row. Prcp and Tobs are nil for SQL NULL.
type Row struct {
	Station string
	Date    string
	Prcp    any
	Tobs    any
}

// Stations seeded by WriteDataset. S9 has metadata but no measurements.
var Stations = []string{"S1", "S9"}

// WriteDataset creates a dataset file under t.TempDir with rows inserted in
// order, so rowid order is slice order. Returns the file path.
func WriteDataset(t *testing.T, rows []Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hawaii.sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close fixture: %v", err)
		}
	}()

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	for _, s := range Stations {
		if _, err := db.Exec(`INSERT INTO station (station, name, latitude, longitude, elevation) VALUES (?, ?, 21.27, -157.82, 3.0)`, s, s+" HI US"); err != nil {
			t.Fatalf("insert station: %v", err)
		}
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`, r.Station, r.Date, r.Prcp, r.Tobs); err != nil {
			t.Fatalf("insert measurement: %v", err)
		}
	}
	return path
}

// DatasetPath returns CLIMATE_DATASET, the path of a real hawaii.sqlite, or
// skips the test when it is unset or missing.
func DatasetPath(t *testing.T) string {
	t.Helper()
	path := os.Getenv("CLIMATE_DATASET")
	if path == "" {
		t.Skip("CLIMATE_DATASET not set, skipping integration test")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("CLIMATE_DATASET %s: %v", path, err)
	}
	return path
}
