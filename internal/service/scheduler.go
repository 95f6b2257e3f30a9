// internal/service/scheduler.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zainab674/voiceagents-sub004/internal/config"
	"github.com/zainab674/voiceagents-sub004/internal/contactsource"
	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/metrics"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

// Scheduler drives every running campaign from one periodic tick. Each
// campaign is processed under a lease so that overlapping ticks, in this
// process or another, never dispatch for the same campaign concurrently.
type Scheduler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Leases     repository.LeaseRepositoryInterface
	Sources    contactsource.Registry
	Dispatcher *Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time

	Config   config.SchedulerConfig
	Location *time.Location

	holder   string
	inflight sync.Map

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	failures int
	retryAt  time.Time
}

func NewScheduler(cfg config.SchedulerConfig, campaigns repository.CampaignRepositoryInterface,
	leases repository.LeaseRepositoryInterface, sources contactsource.Registry,
	dispatcher *Dispatcher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Campaigns:  campaigns,
		Leases:     leases,
		Sources:    sources,
		Dispatcher: dispatcher,
		Logger:     logging.OrNop(logger).Named("scheduler"),
		Config:     cfg,
		Location:   cfg.Location(),
		holder:     uuid.NewString(),
	}
}

// Start launches the tick loop. It returns an error if the loop is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}
	if s.holder == "" {
		s.holder = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
	s.logger().Info("scheduler started",
		zap.Duration("tick", s.Config.TickInterval),
		zap.Int("workers", s.Config.Workers),
		zap.String("holder", s.holder),
	)
	return nil
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger().Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.due() {
				continue
			}
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger().Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.retryAt)
}

// Tick evaluates every running campaign once. It only returns an error when
// the running set cannot be read; per-campaign failures are logged.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.RecordTickDuration(time.Since(start).Seconds()) }()

	campaigns, err := s.Campaigns.ListByStatus(ctx, model.StatusRunning)
	if err != nil {
		backoff := s.backoff()
		s.logger().Warn("store unavailable, backing off",
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		return fmt.Errorf("list running campaigns: %w", err)
	}
	s.resetBackoff()
	if s.Dispatcher != nil {
		s.Dispatcher.FlushUnrecorded(ctx)
	}

	workers := s.Config.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, c := range campaigns {
		id := c.ID
		g.Go(func() error {
			s.processCampaign(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) backoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	d := s.Config.TickInterval
	for i := 1; i < s.failures && d < s.Config.MaxBackoff; i++ {
		d *= 2
	}
	if s.Config.MaxBackoff > 0 && d > s.Config.MaxBackoff {
		d = s.Config.MaxBackoff
	}
	s.retryAt = s.now().Add(d)
	return d
}

func (s *Scheduler) resetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.retryAt = time.Time{}
}

func (s *Scheduler) processCampaign(ctx context.Context, id int64) {
	logger := s.logger().With(zap.Int64("campaign_id", id))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("campaign processing panicked", zap.Any("panic", r))
		}
	}()

	if _, busy := s.inflight.LoadOrStore(id, struct{}{}); busy {
		metrics.RecordSkip("in_flight")
		return
	}
	defer s.inflight.Delete(id)

	ok, err := s.Leases.TryAcquire(ctx, id, s.holder, s.leaseTTL())
	if err != nil {
		logger.Warn("lease acquisition failed", zap.Error(err))
		metrics.RecordSkip("lease_error")
		return
	}
	if !ok {
		logger.Debug("lease held elsewhere", zap.Error(appErrors.ErrLeaseHeld))
		metrics.RecordSkip("lease_held")
		return
	}
	defer func() {
		if err := s.Leases.Release(context.WithoutCancel(ctx), id, s.holder); err != nil {
			logger.Warn("lease release failed", zap.Error(err))
		}
	}()

	if err := s.step(ctx, id, logger); err != nil {
		logger.Error("campaign step failed", zap.Error(err))
	}
}

// step runs reset, guard, cursor and dispatch for one campaign while the lease is held.
func (s *Scheduler) step(ctx context.Context, id int64, logger *zap.Logger) error {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != model.StatusRunning {
		metrics.RecordSkip("not_running")
		return nil
	}

	now := s.now()
	local := now.In(c.Location(s.Location))
	if peek := c.Clone(); resetDaily(peek, local) {
		c, err = s.Campaigns.Update(ctx, id, func(c *model.Campaign) error {
			resetDaily(c, local)
			return nil
		})
		if err != nil {
			return fmt.Errorf("reset daily counter: %w", err)
		}
		logger.Info("daily counter reset", zap.String("date", c.LastDailyReset))
	}

	if c.NextCallAt != nil && now.Before(*c.NextCallAt) {
		metrics.RecordSkip("throttled")
		return nil
	}
	if ok, reason := Eligible(c, local); !ok {
		metrics.RecordSkip(reason)
		return nil
	}

	src, err := s.Sources.For(c.SourceKind)
	if err != nil {
		return s.fail(ctx, c, err, logger)
	}
	contact, err := src.Next(ctx, c.SourceID, c.LastContactKey)
	if err != nil {
		if appErrors.IsConfig(err) {
			return s.fail(ctx, c, err, logger)
		}
		return fmt.Errorf("next contact: %w", err)
	}
	if contact == nil {
		return s.finish(ctx, c, CmdComplete, "", logger)
	}

	_, err = s.Dispatcher.Dispatch(ctx, c, contact)
	switch {
	case err == nil:
		return nil
	case appErrors.IsConfig(err):
		return s.fail(ctx, c, err, logger)
	case appErrors.IsTransient(err):
		logger.Warn("dispatch attempt failed, moving on",
			zap.Int64("contact_key", contact.Key),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}

func (s *Scheduler) fail(ctx context.Context, c *model.Campaign, cause error, logger *zap.Logger) error {
	logger.Error("campaign configuration error", zap.Error(cause))
	return s.finish(ctx, c, CmdFail, cause.Error(), logger)
}

func (s *Scheduler) finish(ctx context.Context, c *model.Campaign, cmd Command, detail string, logger *zap.Logger) error {
	updated, err := s.Campaigns.Update(ctx, c.ID, func(c *model.Campaign) error {
		return transition(c, cmd, detail, s.now())
	})
	if err != nil {
		if appErrors.IsTransition(err) {
			// Paused or stopped by an operator since we loaded it.
			return nil
		}
		return err
	}
	metrics.RecordTransition(string(updated.Status))
	logger.Info("campaign finished", zap.String("status", string(updated.Status)))
	return nil
}

func (s *Scheduler) leaseTTL() time.Duration {
	if s.Config.LeaseTTL > 0 {
		return s.Config.LeaseTTL
	}
	return time.Minute
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logger() *zap.Logger {
	return logging.OrNop(s.Logger)
}
