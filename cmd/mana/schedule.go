package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

// schedule runs job at every time expr yields until ctx is done.
type schedule struct {
	expr     *cronexpr.Expression
	cronSpec string
	job      func(context.Context) error
	logger   *zap.Logger
	now      func() time.Time
}

func newSchedule(cronSpec string, job func(context.Context) error, logger *zap.Logger) (*schedule, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cronSpec, err)
	}
	return &schedule{expr: expr, cronSpec: cronSpec, job: job, logger: logger, now: time.Now}, nil
}

// next returns the delay until the run after t. A zero result means the
// expression has no future runs.
func (s *schedule) next(t time.Time) time.Duration {
	n := s.expr.Next(t)
	if n.IsZero() {
		return 0
	}
	return n.Sub(t)
}

func (s *schedule) run(ctx context.Context) {
	for {
		wait := s.next(s.now())
		if wait <= 0 {
			s.logger.Warn("schedule has no future runs", zap.String("schedule", s.cronSpec))
			return
		}
		s.logger.Debug("next scheduled run", zap.String("schedule", s.cronSpec), zap.Duration("in", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.job(ctx); err != nil {
			s.logger.Warn("scheduled job failed", zap.String("schedule", s.cronSpec), zap.Error(err))
		}
	}
}
