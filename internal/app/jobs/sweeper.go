// Package jobs holds the background work attached to the application
// lifecycle.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	"github.com/R3E-Network/sustainability_layer/internal/app/metrics"
	"github.com/R3E-Network/sustainability_layer/internal/app/system"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// DefaultSchedule runs a sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Clock supplies the current logical time.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// StatsSource reports certificate counts at a given height.
type StatsSource interface {
	Stats(ctx context.Context, now uint64) (certificate.Stats, error)
}

// Sweeper periodically recomputes certificate state counts at the current
// chain height and publishes them as gauges. Expiry is a pure function of
// height, so nothing is written back to the registry.
type Sweeper struct {
	source   StatsSource
	clock    Clock
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	last    certificate.Stats
	lastAt  uint64
}

// NewSweeper creates a lifecycle-managed certificate sweeper.
func NewSweeper(source StatsSource, clock Clock, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("certificate-sweeper")
	}
	return &Sweeper{
		source:   source,
		clock:    clock,
		log:      log,
		schedule: DefaultSchedule,
	}
}

// WithSchedule overrides the cron schedule. Call before Start.
func (s *Sweeper) WithSchedule(schedule string) {
	s.mu.Lock()
	s.schedule = schedule
	s.mu.Unlock()
}

func (s *Sweeper) Name() string { return "certificate-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cron.PrintfLogger(s.log)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Warn("certificate sweep failed")
		}
	}); err != nil {
		cancel()
		return err
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("certificate sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.running = false
	s.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("certificate sweeper stopped")
	return nil
}

// Sweep computes and publishes the certificate counts at the current height.
func (s *Sweeper) Sweep(ctx context.Context) (certificate.Stats, error) {
	start := time.Now()
	now, err := s.clock.Now(ctx)
	if err != nil {
		return certificate.Stats{}, err
	}
	stats, err := s.source.Stats(ctx, now)
	if err != nil {
		return certificate.Stats{}, err
	}

	metrics.SetCertificateStates(stats.Active, stats.Revoked, stats.Expired)
	metrics.RecordSweep(time.Since(start))

	s.mu.Lock()
	s.last, s.lastAt = stats, now
	s.mu.Unlock()

	s.log.WithField("height", now).
		WithField("issued", stats.Issued).
		WithField("active", stats.Active).
		WithField("revoked", stats.Revoked).
		WithField("expired", stats.Expired).
		Debug("certificate sweep completed")
	return stats, nil
}

// Last returns the result of the most recent successful sweep and the height
// it ran at.
func (s *Sweeper) Last() (certificate.Stats, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastAt
}
