package snow

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for the fetch pipeline. Handlers and callers distinguish
// these with errors.Is.
var (
	// ErrProviderUnavailable marks a network or HTTP failure from an external
	// provider. It is reported per source and never aborts the other source.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrValidation marks a record missing a required field. It aborts only
	// the batch insert it occurred in.
	ErrValidation = errors.New("invalid snow report")

	// ErrStorage marks a database failure (unreachable, constraint violation).
	ErrStorage = errors.New("storage failure")
)

// Source abstracts an external snow-condition provider (SNOTEL, Weather
// Unlocked). Implementations make outbound HTTP calls only; they never touch
// storage.
type Source interface {
	Name() DataSource
	Fetch(ctx context.Context) ([]SnowReport, error)
}

// Store is the contract the PostgreSQL store (and test fakes) must satisfy.
type Store interface {
	// InsertReports appends the batch inside a single transaction and returns
	// the number of rows written. All-or-nothing: a validation or storage
	// failure persists no rows from the batch.
	InsertReports(ctx context.Context, reports []SnowReport) (int, error)

	// TopResorts returns the current weekly_snow_summary contents, ordered by
	// snow_last_7d descending, at most 10 rows.
	TopResorts(ctx context.Context, q TopResortsQuery) ([]WeeklySnowSummary, error)

	// StagedReports reads the staging view matching the given source, newest
	// first.
	StagedReports(ctx context.Context, source DataSource, limit int) ([]SnowReport, error)

	Health(ctx context.Context) error
}

// ValidateReports checks every record of a batch against the raw-table
// constraints before any row is written. The whole batch is rejected on the
// first invalid record.
func ValidateReports(reports []SnowReport) error {
	for i, r := range reports {
		if r.ResortName == "" {
			return fmt.Errorf("%w: report %d missing resort_name", ErrValidation, i)
		}
		if r.Timestamp.IsZero() {
			return fmt.Errorf("%w: report %d (%s) missing timestamp", ErrValidation, i, r.ResortName)
		}
		switch r.DataSource {
		case SourceSNOTEL, SourceWeatherUnlocked:
		default:
			return fmt.Errorf("%w: report %d (%s) has unknown data_source %q", ErrValidation, i, r.ResortName, r.DataSource)
		}
	}
	return nil
}
