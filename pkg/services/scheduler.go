package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
)

// Scheduler re-extracts datasources on their cron schedules.
type Scheduler struct {
	cron       *cron.Cron
	extraction ExtractionService
	logger     *zap.Logger

	mu      sync.Mutex
	running map[string]bool // datasources with a run in progress
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler registers one cron entry per datasource that has a schedule. An invalid
// expression is an error naming the datasource.
func NewScheduler(cfg *config.Config, extraction ExtractionService, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		extraction: extraction,
		logger:     logger.Named("scheduler"),
		running:    make(map[string]bool),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	for _, ds := range cfg.Datasources {
		if ds.Schedule == "" {
			continue
		}
		name := ds.Name
		if _, err := s.cron.AddFunc(ds.Schedule, func() { s.run(name) }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for datasource %s: %w", ds.Schedule, name, err)
		}
		s.logger.Info("Scheduled datasource extraction",
			zap.String("datasource", name),
			zap.String("schedule", ds.Schedule))
	}
	return s, nil
}

// Entries returns the number of scheduled datasources.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels runs in flight and waits for them to return or for
// ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run extracts one datasource. Overlapping runs of the same datasource are skipped.
func (s *Scheduler) run(name string) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.logger.Warn("Previous extraction still running, skipping", zap.String("datasource", name))
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	results, err := s.extraction.ExtractDatasource(s.baseCtx, name)
	if err != nil {
		s.logger.Error("Scheduled extraction failed",
			zap.String("datasource", name),
			zap.Int("succeeded", len(results)),
			zap.Error(err))
		return
	}
	s.logger.Info("Scheduled extraction completed",
		zap.String("datasource", name),
		zap.Int("sources", len(results)))
}
