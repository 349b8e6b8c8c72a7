package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mtnpow/snow-data-aggregation/internal/snow"
)

// Scheduler optionally runs the fetch pipeline on a fixed interval. The
// fetch endpoint remains the canonical trigger; an interval of zero leaves
// the scheduler inert.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *snow.Service
	interval  time.Duration
}

// New creates a new Scheduler.
func New(interval time.Duration, service *snow.Service) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		interval:  interval,
	}
}

// Start schedules the periodic fetch job and starts the underlying
// scheduler. A non-positive interval disables periodic fetching.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Println("scheduler: periodic fetch disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		result := s.service.Fetch(ctx)
		log.Printf("scheduler: fetch job %s finished: status=%s inserted=%d",
			result.JobID, result.Status, result.Inserted)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
