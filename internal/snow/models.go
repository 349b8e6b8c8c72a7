package snow

import (
	"fmt"
	"time"
)

// DataSource identifies the external provider a report came from.
type DataSource string

const (
	SourceSNOTEL          DataSource = "SNOTEL"
	SourceWeatherUnlocked DataSource = "WeatherUnlocked"
)

// ParseDataSource converts a user-supplied string into a known DataSource.
func ParseDataSource(s string) (DataSource, error) {
	switch DataSource(s) {
	case SourceSNOTEL:
		return SourceSNOTEL, nil
	case SourceWeatherUnlocked:
		return SourceWeatherUnlocked, nil
	default:
		return "", fmt.Errorf("unknown data source %q", s)
	}
}

// SnowReport is a single normalized snow-condition reading as stored in the
// raw snow_reports table. Rows are append-only; corrections arrive as new
// rows. Nullable measurements are pointers so absent values stay NULL in the
// database rather than collapsing to zero.
type SnowReport struct {
	ID         int64     `json:"id,omitempty"`
	ResortName string    `json:"resort_name"`
	State      string    `json:"state,omitempty"` // two-letter code
	Timestamp  time.Time `json:"timestamp"`       // when the reading was taken, UTC

	SnowDepth   *float64 `json:"snow_depth"`   // inches
	NewSnow24h  *float64 `json:"new_snow_24h"` // inches
	NewSnow72h  *float64 `json:"new_snow_72h"` // inches
	NewSnow7d   *float64 `json:"new_snow_7d"`  // inches
	Elevation   *float64 `json:"elevation"`    // feet
	Temperature *float64 `json:"temperature"`  // Fahrenheit

	DataSource DataSource `json:"data_source"`
}

// WeeklySnowSummary is one row of the weekly_snow_summary view: the trailing
// 7-day window grouped by (resort_name, state). The maxima are taken per
// column independently and need not come from the same underlying row.
type WeeklySnowSummary struct {
	ResortName       string    `json:"resort_name"`
	State            string    `json:"state"`
	SnowLast7d       float64   `json:"snow_last_7d"`
	CurrentSnowDepth float64   `json:"current_snow_depth"`
	LastUpdated      time.Time `json:"last_updated"`
}

// TopResortsQuery narrows the weekly summary. Limit is clamped to the view's
// 10-row cap by the store.
type TopResortsQuery struct {
	State string
	Limit int
}
