package snow

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Fetch outcome statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"

	sourceOK     = "ok"
	sourceFailed = "failed"
)

// SourceOutcome reports one provider's result within a fetch job.
type SourceOutcome struct {
	Source DataSource `json:"source"`
	Status string     `json:"status"`
	Count  int        `json:"count"`
	Error  string     `json:"error,omitempty"`
}

// FetchResult is the response of a single fetch job: per-source outcomes so
// callers can tell "SNOTEL failed, WeatherUnlocked succeeded" from total
// failure.
type FetchResult struct {
	JobID    string          `json:"job_id"`
	Status   string          `json:"status"`
	Inserted int             `json:"inserted"`
	Sources  []SourceOutcome `json:"sources"`
}

// Service orchestrates fetching from the configured sources and persisting
// the normalized reports.
type Service struct {
	store   Store
	sources []Source
}

// NewService creates a new Service.
func NewService(store Store, sources []Source) *Service {
	return &Service{
		store:   store,
		sources: sources,
	}
}

// Fetch pulls current readings from every source concurrently and appends
// each source's batch in its own transaction. Sources are independent failure
// domains: one provider going down never aborts the other's insert.
func (s *Service) Fetch(ctx context.Context) FetchResult {
	jobID := uuid.NewString()
	log.Printf("INFO: fetch job %s started with %d sources", jobID, len(s.sources))

	outcomes := make([]SourceOutcome, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			outcomes[i] = s.fetchOne(ctx, jobID, src)
		}(i, src)
	}
	wg.Wait()

	result := FetchResult{JobID: jobID, Sources: outcomes}
	var ok, failed int
	for _, out := range outcomes {
		if out.Status == sourceOK {
			ok++
			result.Inserted += out.Count
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		result.Status = StatusSuccess
	case ok > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusError
	}

	log.Printf("INFO: fetch job %s finished: status=%s inserted=%d", jobID, result.Status, result.Inserted)
	return result
}

func (s *Service) fetchOne(ctx context.Context, jobID string, src Source) SourceOutcome {
	out := SourceOutcome{Source: src.Name(), Status: sourceOK}

	reports, err := src.Fetch(ctx)
	if err != nil {
		log.Printf("source %s fetch failed (job %s): %v", src.Name(), jobID, err)
		out.Status = sourceFailed
		out.Error = fmt.Errorf("%w: %v", ErrProviderUnavailable, err).Error()
		return out
	}

	n, err := s.store.InsertReports(ctx, reports)
	if err != nil {
		log.Printf("source %s insert failed (job %s): %v", src.Name(), jobID, err)
		out.Status = sourceFailed
		out.Error = err.Error()
		return out
	}

	out.Count = n
	log.Printf("INFO: source %s stored %d reports (job %s)", src.Name(), n, jobID)
	return out
}

// TopResorts delegates to the store's weekly summary view.
func (s *Service) TopResorts(ctx context.Context, q TopResortsQuery) ([]WeeklySnowSummary, error) {
	return s.store.TopResorts(ctx, q)
}

// StagedReports delegates to the per-source staging view.
func (s *Service) StagedReports(ctx context.Context, source DataSource, limit int) ([]SnowReport, error) {
	return s.store.StagedReports(ctx, source, limit)
}

// Health delegates to the underlying store.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
