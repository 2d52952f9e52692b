package workflow

import (
	"context"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/logging"
)

// Scheduler drives the cron sweep once per minute
type Scheduler struct {
	service *Service
	logger  logging.Logger
}

// NewScheduler creates a scheduler
func NewScheduler(service *Service, logger logging.Logger) *Scheduler {
	return &Scheduler{service: service, logger: logger}
}

// Run sweeps on minute boundaries until the context ends
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.service.Sweep(ctx); err != nil {
				s.logger.Error("cron sweep failed", logging.F("error", err.Error()))
			}
		}
	}
}
