package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// minLease floors short-cycle leases so clock skew between instances
// cannot expire a live lease mid-run.
const minLease = 2 * time.Minute

// leaseFor sizes a cycle's lease at half again its deadline, so the lease
// always outlives the longest permitted execution.
func leaseFor(deadline time.Duration) time.Duration {
	lease := deadline + deadline/2
	if lease < minLease {
		lease = minLease
	}
	return lease
}

// cycleEntry is one registered recurring cycle
type cycleEntry struct {
	name     string
	schedule string
	deadline time.Duration
	lease    time.Duration
	handler  func(ctx context.Context) error
	cronID   cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Service runs the recurring cycles on cron schedules. Each cycle is guarded
// by a distributed TTL lease scoped to the environment, so overlapping
// instances (deploys, restarts) never run the same cycle concurrently.
type Service struct {
	cron        *cron.Cron
	locks       interfaces.LockStorage
	environment string
	holderID    string
	logger      arbor.ILogger

	mu      sync.Mutex
	cycles  map[string]*cycleEntry
	running bool
}

// NewService creates the cycle scheduler
func NewService(locks interfaces.LockStorage, environment string, logger arbor.ILogger) *Service {
	return &Service{
		// Schedules run in UTC so the digest wall-clock matches config
		cron:        cron.New(cron.WithLocation(time.UTC)),
		locks:       locks,
		environment: environment,
		holderID:    uuid.New().String(),
		logger:      logger,
		cycles:      make(map[string]*cycleEntry),
	}
}

// Register adds a recurring cycle. Schedule is a cron expression; deadline
// bounds one execution.
func (s *Service) Register(name, schedule string, deadline time.Duration, handler func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cycles[name]; exists {
		return fmt.Errorf("cycle %s already registered", name)
	}

	entry := &cycleEntry{
		name:     name,
		schedule: schedule,
		deadline: deadline,
		lease:    leaseFor(deadline),
		handler:  handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeCycle(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cycle %s: %w", name, err)
	}

	entry.cronID = cronID
	s.cycles[name] = entry

	s.logger.Info().
		Str("cycle", name).
		Str("schedule", schedule).
		Dur("deadline", deadline).
		Msg("Cycle registered")
	return nil
}

// Start begins executing registered cycles
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Int("cycles", len(s.cycles)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler, waiting for in-flight cycles
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
}

// TriggerNow runs a registered cycle outside its schedule. Used by the HTTP
// cron endpoints.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	entry, ok := s.cycles[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no cycle named %s", name)
	}
	go s.executeCycle(entry)
	return nil
}

// executeCycle claims the cycle lease, runs the handler under its deadline
// with lease renewal in the background, and releases. Panics are recovered
// and counted so one bad cycle never kills the process.
func (s *Service) executeCycle(entry *cycleEntry) {
	defer func() {
		if r := recover(); r != nil {
			common.RecordPanic()

			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.logger.Error().
				Str("cycle", entry.name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Recovered from panic in cycle - continuing service operation")
		}
	}()

	lockName := s.lockName(entry.name)
	ctx, cancel := context.WithTimeout(context.Background(), entry.deadline)
	defer cancel()

	if err := s.locks.TryAcquire(ctx, lockName, s.holderID, entry.lease); err != nil {
		if errors.Is(err, models.ErrLockHeld) {
			s.logger.Debug().Str("cycle", entry.name).Msg("Cycle lease held elsewhere, skipping")
			return
		}
		s.logger.Error().Err(err).Str("cycle", entry.name).Msg("Failed to claim cycle lease")
		return
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer releaseCancel()
		if err := s.locks.Release(releaseCtx, lockName, s.holderID); err != nil {
			s.logger.Warn().Err(err).Str("cycle", entry.name).Msg("Failed to release cycle lease")
		}
	}()

	stopRenewal := s.startRenewal(ctx, lockName, entry.name, entry.lease)
	defer stopRenewal()

	start := time.Now()
	s.logger.Debug().Str("cycle", entry.name).Msg("Cycle starting")

	err := entry.handler(ctx)

	now := time.Now()
	s.mu.Lock()
	entry.lastRun = &now
	if err != nil {
		entry.lastErr = err.Error()
	} else {
		entry.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("cycle", entry.name).
			Dur("elapsed", time.Since(start)).
			Msg("Cycle failed")
		return
	}

	s.logger.Info().
		Str("cycle", entry.name).
		Dur("elapsed", time.Since(start)).
		Msg("Cycle completed")
}

// startRenewal renews the lease at a third of its length until stopped, so a
// holder survives two missed renewals before losing the lease
func (s *Service) startRenewal(ctx context.Context, lockName, cycleName string, lease time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.locks.Renew(ctx, lockName, s.holderID, lease); err != nil {
					s.logger.Warn().Err(err).Str("cycle", cycleName).Msg("Lease renewal failed")
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// lockName scopes the lease key by environment so staging and production
// instances sharing a store never contend.
func (s *Service) lockName(cycle string) string {
	env := strings.ToLower(strings.TrimSpace(s.environment))
	if env == "" {
		env = "default"
	}
	return env + ":" + cycle
}
