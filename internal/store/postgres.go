package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtnpow/snow-data-aggregation/internal/snow"
)

// schemaSQL bootstraps the raw table plus the derived views. The staging and
// summary projections are plain SQL views on purpose: they are recomputed on
// every read, so freshly appended rows are visible immediately and nothing
// needs invalidation.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS snow_reports (
    id           BIGSERIAL PRIMARY KEY,
    resort_name  TEXT NOT NULL,
    state        TEXT,
    timestamp    TIMESTAMPTZ NOT NULL,
    snow_depth   DOUBLE PRECISION,
    new_snow_24h DOUBLE PRECISION,
    new_snow_72h DOUBLE PRECISION,
    new_snow_7d  DOUBLE PRECISION,
    elevation    DOUBLE PRECISION,
    temperature  DOUBLE PRECISION,
    data_source  TEXT NOT NULL CHECK (data_source IN ('SNOTEL', 'WeatherUnlocked'))
);

CREATE INDEX IF NOT EXISTS idx_snow_reports_timestamp ON snow_reports (timestamp);

CREATE OR REPLACE VIEW stg_snotel_reports AS
SELECT id, resort_name, state, timestamp,
       snow_depth, new_snow_24h, new_snow_72h, new_snow_7d,
       elevation, temperature
FROM snow_reports
WHERE data_source = 'SNOTEL';

CREATE OR REPLACE VIEW stg_weather_unlocked_reports AS
SELECT id, resort_name, state, timestamp,
       snow_depth, new_snow_24h, new_snow_72h, new_snow_7d,
       elevation, temperature
FROM snow_reports
WHERE data_source = 'WeatherUnlocked';

CREATE OR REPLACE VIEW weekly_snow_summary AS
SELECT resort_name,
       state,
       MAX(timestamp)   AS last_updated,
       MAX(new_snow_7d) AS snow_last_7d,
       MAX(snow_depth)  AS current_snow_depth
FROM (
    SELECT resort_name, state, timestamp, new_snow_7d, snow_depth
    FROM stg_snotel_reports
    UNION ALL
    SELECT resort_name, state, timestamp, new_snow_7d, snow_depth
    FROM stg_weather_unlocked_reports
) staged
WHERE timestamp >= CURRENT_TIMESTAMP - INTERVAL '7 days'
GROUP BY resort_name, state
ORDER BY snow_last_7d DESC NULLS LAST
LIMIT 10;
`

const insertReportSQL = `
INSERT INTO snow_reports (
    resort_name, state, timestamp,
    snow_depth, new_snow_24h, new_snow_72h, new_snow_7d,
    elevation, temperature, data_source
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// maxSummaryRows mirrors the LIMIT baked into weekly_snow_summary.
const maxSummaryRows = 10

// Postgres implements snow.Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Init creates the raw table and derived views if they do not exist.
func (p *Postgres) Init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: init schema: %w", err)
	}
	return nil
}

// InsertReports validates the batch up front and appends every row inside a
// single transaction. Any invalid record rejects the whole batch before a
// row is written; any storage error rolls the transaction back, so partial
// batches never persist.
func (p *Postgres) InsertReports(ctx context.Context, reports []snow.SnowReport) (int, error) {
	if err := snow.ValidateReports(reports); err != nil {
		return 0, err
	}
	if len(reports) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %v", snow.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range reports {
		batch.Queue(insertReportSQL,
			r.ResortName, nullableString(r.State), r.Timestamp,
			r.SnowDepth, r.NewSnow24h, r.NewSnow72h, r.NewSnow7d,
			r.Elevation, r.Temperature, string(r.DataSource),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range reports {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("%w: insert snow report: %v", snow.ErrStorage, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("%w: close batch: %v", snow.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", snow.ErrStorage, err)
	}
	return len(reports), nil
}

// TopResorts reads the weekly summary view, optionally narrowed to one state.
func (p *Postgres) TopResorts(ctx context.Context, q snow.TopResortsQuery) ([]snow.WeeklySnowSummary, error) {
	sql, args := topResortsQuery(q)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query weekly summary: %v", snow.ErrStorage, err)
	}
	defer rows.Close()

	var summaries []snow.WeeklySnowSummary
	for rows.Next() {
		var (
			s         snow.WeeklySnowSummary
			state     *string
			snow7d    *float64
			snowDepth *float64
		)
		if err := rows.Scan(&s.ResortName, &state, &snow7d, &snowDepth, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("%w: scan summary row: %v", snow.ErrStorage, err)
		}
		if state != nil {
			s.State = *state
		}
		if snow7d != nil {
			s.SnowLast7d = *snow7d
		}
		if snowDepth != nil {
			s.CurrentSnowDepth = *snowDepth
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read summary rows: %v", snow.ErrStorage, err)
	}
	return summaries, nil
}

// topResortsQuery builds the summary select. The ORDER BY is repeated on top
// of the view because view-level ordering is not guaranteed to survive an
// outer query.
func topResortsQuery(q snow.TopResortsQuery) (string, []any) {
	sql := `SELECT resort_name, state, snow_last_7d, current_snow_depth, last_updated
FROM weekly_snow_summary`

	var args []any
	if q.State != "" {
		sql += ` WHERE state = $1`
		args = append(args, strings.ToUpper(q.State))
	}

	limit := q.Limit
	if limit <= 0 || limit > maxSummaryRows {
		limit = maxSummaryRows
	}
	sql += fmt.Sprintf(` ORDER BY snow_last_7d DESC NULLS LAST LIMIT %d`, limit)
	return sql, args
}

// StagedReports reads the staging view for the given source, newest first.
func (p *Postgres) StagedReports(ctx context.Context, source snow.DataSource, limit int) ([]snow.SnowReport, error) {
	view, err := stagingView(source)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT id, resort_name, state, timestamp,
       snow_depth, new_snow_24h, new_snow_72h, new_snow_7d,
       elevation, temperature
FROM %s
ORDER BY timestamp DESC
LIMIT $1`, view)

	rows, err := p.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", snow.ErrStorage, view, err)
	}
	defer rows.Close()

	var reports []snow.SnowReport
	for rows.Next() {
		var (
			r     snow.SnowReport
			state *string
		)
		if err := rows.Scan(&r.ID, &r.ResortName, &state, &r.Timestamp,
			&r.SnowDepth, &r.NewSnow24h, &r.NewSnow72h, &r.NewSnow7d,
			&r.Elevation, &r.Temperature); err != nil {
			return nil, fmt.Errorf("%w: scan staged row: %v", snow.ErrStorage, err)
		}
		if state != nil {
			r.State = *state
		}
		r.DataSource = source
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read staged rows: %v", snow.ErrStorage, err)
	}
	return reports, nil
}

// stagingView maps a data source to its view name.
func stagingView(source snow.DataSource) (string, error) {
	switch source {
	case snow.SourceSNOTEL:
		return "stg_snotel_reports", nil
	case snow.SourceWeatherUnlocked:
		return "stg_weather_unlocked_reports", nil
	default:
		return "", fmt.Errorf("%w: no staging view for data_source %q", snow.ErrValidation, source)
	}
}

// Health checks database connectivity.
func (p *Postgres) Health(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", snow.ErrStorage, err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
