package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
)

// stuckMultiplier flags a cycle as stuck when its oldest running work item
// is older than this many expected cycle durations.
const stuckMultiplier = 3

// Status is the health snapshot exposed on the health endpoints
type Status struct {
	Alive          bool      `json:"alive"`
	Ready          bool      `json:"ready"`
	NotReadyReason string    `json:"not_ready_reason,omitempty"`
	Healthy        bool      `json:"healthy"`
	Version        string    `json:"version"`
	Environment    string    `json:"environment"`
	PanicCount     int64     `json:"panic_count"`
	StuckCycle     string    `json:"stuck_cycle,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	Uptime         string    `json:"uptime"`
}

// Service tracks liveness, readiness, and cycle health. Readiness requires
// finished startup wiring plus a reachable store and a live ATS session;
// healthy degrades when a cycle wedges or handlers start panicking.
type Service struct {
	vetting     interfaces.VettingStorage
	ats         interfaces.ATSClient
	environment string
	cycleLength time.Duration
	startedAt   time.Time
	ready       atomic.Bool
	logger      arbor.ILogger
}

// NewService creates the health monitor
func NewService(vetting interfaces.VettingStorage, ats interfaces.ATSClient, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		vetting:     vetting,
		ats:         ats,
		environment: config.Environment,
		cycleLength: time.Duration(config.Vetting.TickMinutes) * time.Minute,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

// SetReady marks startup wiring as complete
func (s *Service) SetReady() {
	s.ready.Store(true)
}

// Check returns the current health snapshot
func (s *Service) Check(ctx context.Context) *Status {
	status := &Status{
		Alive:       true,
		Ready:       s.ready.Load(),
		Healthy:     true,
		Version:     common.GetFullVersion(),
		Environment: s.environment,
		PanicCount:  common.GetPanicCount(),
		StartedAt:   s.startedAt,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	if status.Ready {
		if reason := s.checkDependencies(ctx); reason != "" {
			status.Ready = false
			status.NotReadyReason = reason
		}
	}

	if stuck := s.detectStuckCycle(ctx); stuck != "" {
		status.Healthy = false
		status.StuckCycle = stuck
	}

	return status
}

// checkDependencies verifies the store and the ATS session are reachable.
// Returns an empty string when both answer.
func (s *Service) checkDependencies(ctx context.Context) string {
	if _, err := s.vetting.GetOldestRunning(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Store readiness check failed")
		return "store unreachable: " + err.Error()
	}
	if err := s.ats.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("ATS readiness check failed")
		return "ats unreachable: " + err.Error()
	}
	return ""
}

// detectStuckCycle looks for a running vetting run that has outlived several
// cycle lengths, which means a worker died without completing or failing it.
func (s *Service) detectStuckCycle(ctx context.Context) string {
	oldest, err := s.vetting.GetOldestRunning(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stuck-cycle check failed")
		return ""
	}
	if oldest == nil {
		return ""
	}

	limit := s.cycleLength * stuckMultiplier
	age := time.Since(oldest.StartedAt)
	if age > limit {
		return fmt.Sprintf("vetting run %s running for %s (limit %s)", oldest.RunID, age.Round(time.Second), limit)
	}
	return ""
}
