package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mtnpow/snow-data-aggregation/internal/snow"
)

type stubStore struct {
	mu        sync.Mutex
	inserted  []snow.SnowReport
	summaries []snow.WeeklySnowSummary
	staged    []snow.SnowReport
}

func (s *stubStore) InsertReports(_ context.Context, reports []snow.SnowReport) (int, error) {
	if err := snow.ValidateReports(reports); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, reports...)
	return len(reports), nil
}

func (s *stubStore) TopResorts(context.Context, snow.TopResortsQuery) ([]snow.WeeklySnowSummary, error) {
	return s.summaries, nil
}

func (s *stubStore) StagedReports(context.Context, snow.DataSource, int) ([]snow.SnowReport, error) {
	return s.staged, nil
}

func (s *stubStore) Health(context.Context) error { return nil }

type stubSource struct {
	name    snow.DataSource
	reports []snow.SnowReport
	err     error
}

func (s *stubSource) Name() snow.DataSource { return s.name }

func (s *stubSource) Fetch(context.Context) ([]snow.SnowReport, error) {
	return s.reports, s.err
}

func newTestApp(store snow.Store, srcs ...snow.Source) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, snow.NewService(store, srcs))
	return app
}

func TestTopResortsReturnsSummaries(t *testing.T) {
	store := &stubStore{
		summaries: []snow.WeeklySnowSummary{
			{ResortName: "Alta", State: "UT", SnowLast7d: 15, CurrentSnowDepth: 40, LastUpdated: time.Now().UTC()},
			{ResortName: "Vail", State: "CO", SnowLast7d: 9, CurrentSnowDepth: 31, LastUpdated: time.Now().UTC()},
		},
	}
	app := newTestApp(store)

	req := httptest.NewRequest(http.MethodGet, "/api/snow/top-resorts", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var got []snow.WeeklySnowSummary
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].ResortName != "Alta" || got[0].SnowLast7d != 15 || got[0].CurrentSnowDepth != 40 {
		t.Fatalf("unexpected first summary: %+v", got[0])
	}
}

func TestTopResortsValidation(t *testing.T) {
	app := newTestApp(&stubStore{})

	// Limit above the view's 10-row cap.
	req := httptest.NewRequest(http.MethodGet, "/api/snow/top-resorts?limit=20", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// State must be a two-letter code.
	req = httptest.NewRequest(http.MethodGet, "/api/snow/top-resorts?state=Utah", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestTopResortsEmptyIsNotFound(t *testing.T) {
	app := newTestApp(&stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/snow/top-resorts", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestFetchReportsPerSourceOutcome(t *testing.T) {
	store := &stubStore{}
	app := newTestApp(store,
		&stubSource{name: snow.SourceSNOTEL, err: errors.New("connection refused")},
		&stubSource{name: snow.SourceWeatherUnlocked, reports: []snow.SnowReport{{
			ResortName: "Alta",
			State:      "UT",
			Timestamp:  time.Now().UTC(),
			DataSource: snow.SourceWeatherUnlocked,
		}}},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/snow/fetch", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var result snow.FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if result.Status != snow.StatusPartial {
		t.Fatalf("expected status %q, got %q", snow.StatusPartial, result.Status)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("expected 2 source outcomes, got %d", len(result.Sources))
	}
	if result.Sources[0].Status != "failed" || result.Sources[0].Error == "" {
		t.Fatalf("expected SNOTEL failure outcome, got %+v", result.Sources[0])
	}
	if result.Sources[1].Status != "ok" || result.Sources[1].Count != 1 {
		t.Fatalf("expected WeatherUnlocked success outcome, got %+v", result.Sources[1])
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected the healthy source's row persisted, got %d rows", len(store.inserted))
	}
}

func TestFetchTotalFailureIsBadGateway(t *testing.T) {
	app := newTestApp(&stubStore{},
		&stubSource{name: snow.SourceSNOTEL, err: errors.New("timeout")},
		&stubSource{name: snow.SourceWeatherUnlocked, err: errors.New("timeout")},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/snow/fetch", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, resp.StatusCode)
	}
}

func TestStagedReportsSourceValidation(t *testing.T) {
	app := newTestApp(&stubStore{})

	// Missing source parameter.
	req := httptest.NewRequest(http.MethodGet, "/api/snow/reports", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Unknown source value.
	req = httptest.NewRequest(http.MethodGet, "/api/snow/reports?source=OpenSnow", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestStagedReports(t *testing.T) {
	store := &stubStore{
		staged: []snow.SnowReport{{
			ResortName: "SNOTEL Station 301",
			State:      "CO",
			Timestamp:  time.Now().UTC(),
			DataSource: snow.SourceSNOTEL,
		}},
	}
	app := newTestApp(store)

	req := httptest.NewRequest(http.MethodGet, "/api/snow/reports?source=SNOTEL", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Source  snow.DataSource   `json:"source"`
		Count   int               `json:"count"`
		Reports []snow.SnowReport `json:"reports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Source != snow.SourceSNOTEL || body.Count != 1 || len(body.Reports) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}
