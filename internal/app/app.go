package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/ats"
	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/services/dedup"
	"github.com/ternarybob/vettra/internal/services/detector"
	"github.com/ternarybob/vettra/internal/services/digest"
	"github.com/ternarybob/vettra/internal/services/embedfilter"
	"github.com/ternarybob/vettra/internal/services/feed"
	"github.com/ternarybob/vettra/internal/services/health"
	"github.com/ternarybob/vettra/internal/services/imappoller"
	"github.com/ternarybob/vettra/internal/services/llm"
	"github.com/ternarybob/vettra/internal/services/mailer"
	"github.com/ternarybob/vettra/internal/services/refstore"
	"github.com/ternarybob/vettra/internal/services/resume"
	"github.com/ternarybob/vettra/internal/services/scheduler"
	"github.com/ternarybob/vettra/internal/services/scorer"
	"github.com/ternarybob/vettra/internal/services/vetting"
	"github.com/ternarybob/vettra/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// ATS access
	ATSClient interfaces.ATSClient

	// Freshness engine
	RefStore    *refstore.Service
	FeedService *feed.Service

	// Vetting engine
	DetectorService *detector.Service
	ResumeService   *resume.Service
	FilterService   *embedfilter.Service
	ScorerService   *scorer.Service
	VettingService  *vetting.Service
	IMAPPoller      *imappoller.Service

	// Delivery and reporting
	MailerService *mailer.Service
	DedupService  *dedup.Service
	DigestService *digest.Service

	// Operations
	HealthService *health.Service
	Scheduler     *scheduler.Service
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.registerCycles(); err != nil {
		return nil, fmt.Errorf("failed to register cycles: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Bool("vetting_enabled", cfg.Vetting.Enabled).
		Bool("feed_frozen", cfg.Feed.Frozen).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = manager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	a.ATSClient = ats.NewClient(&a.Config.ATS, a.Logger)

	a.MailerService = mailer.NewService(&a.Config.Mail, a.Logger)
	a.DedupService = dedup.NewService(a.StorageManager.Deliveries(), &a.Config.Dedup, a.Logger)

	// Freshness engine
	a.RefStore = refstore.NewService(a.StorageManager.References(), a.Logger, a.Config.Feed.ReferenceGCDays)

	tagMap, err := feed.LoadTagMap(a.Config.Feed.TagMapPath)
	if err != nil {
		return fmt.Errorf("failed to load recruiter tag map: %w", err)
	}
	builder := feed.NewBuilder(a.Config.Feed.Company, a.Config.Feed.ApplyBaseURL, a.Config.Feed.ApplyEmail, tagMap)
	publisher := feed.NewSFTPPublisher(&a.Config.Feed, a.Logger)

	a.FeedService = feed.NewService(
		&a.Config.Feed,
		&a.Config.ATS,
		a.ATSClient,
		a.RefStore,
		builder,
		publisher,
		a.MailerService,
		a.DedupService,
		a.StorageManager.Publishes(),
		a.Config.Mail.AdminBCC,
		a.Logger,
	)
	a.Logger.Debug().Int("tearsheets", len(a.Config.ATS.TearsheetIDs)).Msg("Feed service initialized")

	// Vetting engine
	primary, err := llm.NewClaudeScorer(&a.Config.LLM, a.Config.LLM.PrimaryModel, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize primary scorer: %w", err)
	}
	premium, err := llm.NewClaudeScorer(&a.Config.LLM, a.Config.LLM.EscalationModel, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize escalation scorer: %w", err)
	}
	embedder, err := llm.NewGeminiEmbedder(context.Background(), &a.Config.LLM, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	a.DetectorService = detector.NewService(
		a.ATSClient,
		a.StorageManager.Applications(),
		&a.Config.Vetting,
		a.Config.ATS.ExcludeJobs,
		a.Logger,
	)
	a.ResumeService = resume.NewService(a.ATSClient, a.StorageManager.ResumeCache(), a.Logger)
	a.FilterService = embedfilter.NewService(
		embedder,
		a.StorageManager.EmbeddingCache(),
		a.StorageManager.Vetting(),
		a.ATSClient,
		&a.Config.Vetting,
		a.Logger,
	)
	a.ScorerService = scorer.NewService(
		primary,
		premium,
		a.StorageManager.Requirements(),
		a.StorageManager.Vetting(),
		&a.Config.Vetting,
		a.Logger,
	)
	a.VettingService = vetting.NewService(
		a.DetectorService,
		a.ResumeService,
		a.FilterService,
		a.ScorerService,
		a.FeedService,
		a.ATSClient,
		a.StorageManager.Vetting(),
		a.StorageManager.Applications(),
		a.MailerService,
		a.DedupService,
		&a.Config.Vetting,
		a.Logger,
	)
	a.Logger.Debug().
		Str("primary_model", a.Config.LLM.PrimaryModel).
		Str("escalation_model", a.Config.LLM.EscalationModel).
		Msg("Vetting pipeline initialized")

	a.IMAPPoller = imappoller.NewService(&a.Config.IMAP, a.StorageManager.Applications(), a.Logger)

	a.DigestService = digest.NewService(
		a.StorageManager.Publishes(),
		a.StorageManager.Deliveries(),
		a.StorageManager.Vetting(),
		a.MailerService,
		a.Config.Mail.AdminBCC,
		a.Logger,
	)

	a.HealthService = health.NewService(a.StorageManager.Vetting(), a.ATSClient, a.Config, a.Logger)
	a.Scheduler = scheduler.NewService(a.StorageManager.Locks(), a.Config.Environment, a.Logger)

	return nil
}

// registerCycles wires the recurring cycles onto the scheduler
func (a *App) registerCycles() error {
	publishSchedule := fmt.Sprintf("@every %dm", a.Config.Publish.TickMinutes)
	publishDeadline := common.ParseDuration(a.Config.Publish.CycleDeadline, 90*time.Second)
	if err := a.Scheduler.Register("publish", publishSchedule, publishDeadline, a.FeedService.RunCycle); err != nil {
		return err
	}

	if a.Config.Vetting.Enabled {
		vettingSchedule := fmt.Sprintf("@every %dm", a.Config.Vetting.TickMinutes)
		vettingDeadline := common.ParseDuration(a.Config.Vetting.CycleDeadline, 6*time.Minute)
		if err := a.Scheduler.Register("vetting", vettingSchedule, vettingDeadline, a.runVettingCycle); err != nil {
			return err
		}
	} else {
		a.Logger.Warn().Msg("Vetting is disabled, no vetting cycle scheduled")
	}

	digestSchedule, err := dailyCronSpec(a.Config.Digest.DailyUTC)
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", a.Config.Digest.DailyUTC, err)
	}
	if err := a.Scheduler.Register("digest", digestSchedule, 2*time.Minute, a.DigestService.SendDaily); err != nil {
		return err
	}

	return nil
}

// runVettingCycle drains the inbound mailbox first so mailed applications
// land in the same batch as API-detected ones.
func (a *App) runVettingCycle(ctx context.Context) error {
	if a.IMAPPoller.Enabled() {
		if n, err := a.IMAPPoller.Poll(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("IMAP poll failed, continuing with detected applications")
		} else if n > 0 {
			a.Logger.Debug().Int("ingested", n).Msg("Mailbox applications ingested")
		}
	}
	return a.VettingService.RunCycle(ctx)
}

// Start begins the recurring cycles and marks the app ready
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	a.HealthService.SetReady()
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}

// dailyCronSpec converts an "HH:MM" wall clock into a cron expression
func dailyCronSpec(hhmm string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad minute %q", parts[1])
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
