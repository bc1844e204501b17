package dataset

import (
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

//go:embed sql/all-measurements.sql
var allMeasurementsSQL string

//go:embed sql/measurements-in-range.sql
var measurementsInRangeSQL string

//go:embed sql/distinct-stations.sql
var distinctStationsSQL string

//go:embed sql/max-date.sql
var maxDateSQL string

//go:embed sql/measurement-stats.sql
var measurementStatsSQL string

//go:embed sql/station-count.sql
var stationCountSQL string

// buildDSN returns a read-only DSN for path. mode=ro makes a missing file an
// open error instead of creating an empty database; _query_only rejects writes
// on every pooled connection.
func buildDSN(path string) string {
	params := []string{
		"mode=ro",
		"_query_only=true",
		"_busy_timeout=5000",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&")
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&"))
}
