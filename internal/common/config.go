package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "production" or "staging" - scopes scheduler lock keys
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	ATS         ATSConfig     `toml:"ats"`
	Feed        FeedConfig    `toml:"feed"`
	Mail        MailConfig    `toml:"mail"`
	IMAP        IMAPConfig    `toml:"imap"`
	LLM         LLMConfig     `toml:"llm"`
	Vetting     VettingConfig `toml:"vetting"`
	Publish     PublishConfig `toml:"publish"`
	Digest      DigestConfig  `toml:"digest"`
	Dedup       DedupConfig   `toml:"dedup"`
	Cron        CronConfig    `toml:"cron"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ATSConfig contains credentials and source configuration for the ATS REST API
type ATSConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	AuthURL      string   `toml:"auth_url"`     // OAuth token endpoint
	LoginURL     string   `toml:"login_url"`    // REST login endpoint (token -> session)
	TearsheetIDs []int    `toml:"tearsheet_ids"`
	ExcludeJobs  []string `toml:"exclude_jobs"` // Job IDs never published or vetted
	AgentUserID  int      `toml:"agent_user_id"` // Well-known automation agent owner in the ATS
	MaxConns     int      `toml:"max_conns"`
	Timeout      string   `toml:"timeout"` // Per-operation ceiling as duration string
}

// FeedConfig controls the XML feed build and the SFTP publish target
type FeedConfig struct {
	RemoteHost     string `toml:"remote_host"`
	RemoteUser     string `toml:"remote_user"`
	RemotePassword string `toml:"remote_password"`
	RemotePort     int    `toml:"remote_port"`
	RemotePath     string `toml:"remote_path"`
	Company        string `toml:"company"`       // Feed <company> value
	ApplyBaseURL   string `toml:"apply_base_url"` // Public application URL prefix
	ApplyEmail     string `toml:"apply_email"`
	Frozen         bool   `toml:"frozen"`       // Freeze switch - halts all builds and publishes
	TagMapPath     string `toml:"tag_map_path"` // YAML recruiter tag / classification map
	ReferenceGCDays int   `toml:"reference_gc_days"` // Absent-from-tearsheets days before token GC
}

// MailConfig contains SMTP sender configuration
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	ReplyTo  string `toml:"reply_to"`
	AdminBCC string `toml:"admin_bcc"`
	UseTLS   bool   `toml:"use_tls"`
}

// IMAPConfig contains the inbound applications mailbox configuration
type IMAPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Mailbox  string `toml:"mailbox"`
	UseTLS   bool   `toml:"use_tls"`
}

// LLMConfig contains API keys and model selection for the scoring cascade
type LLMConfig struct {
	AnthropicAPIKey string  `toml:"anthropic_api_key"` // Layer 2/3 scoring
	GeminiAPIKey    string  `toml:"gemini_api_key"`    // Layer 1 embeddings
	PrimaryModel    string  `toml:"primary_model"`
	EscalationModel string  `toml:"escalation_model"`
	EmbeddingModel  string  `toml:"embedding_model"`
	MaxTokens       int     `toml:"max_tokens"`
	Temperature     float32 `toml:"temperature"`
	CallTimeout     string  `toml:"call_timeout"` // Per-LLM-call timeout as duration string
}

// VettingConfig contains the vetting cycle and scoring policy
type VettingConfig struct {
	Enabled            bool    `toml:"enabled"`
	TickMinutes        int     `toml:"tick_minutes" validate:"gte=1"`
	BatchSize          int     `toml:"batch_size" validate:"gte=1"`
	MaxCandidates      int     `toml:"max_candidates"` // Parallel candidates per cycle
	ScoreWorkers       int     `toml:"score_workers"`  // Parallel LLM calls per candidate
	MatchThreshold     int     `toml:"match_threshold" validate:"gte=0,lte=100"`
	EscalationLow      int     `toml:"escalation_low" validate:"gte=0,lte=100"`
	EscalationHigh     int     `toml:"escalation_high" validate:"gte=0,lte=100"`
	EmbeddingThreshold float64 `toml:"embedding_threshold"`
	EmbeddingMinJobs   int     `toml:"embedding_min_jobs"`
	EmbeddingMaxTokens int     `toml:"embedding_max_tokens"`
	DetectorWindowMins int     `toml:"detector_window_mins"` // ATS fallback search lookback
	ResumeMaxAttempts  int     `toml:"resume_max_attempts"`  // Extraction retries before dead-letter
	CycleDeadline      string  `toml:"cycle_deadline"` // Overall vetting handler deadline
}

// PublishConfig contains the feed publish cycle policy
type PublishConfig struct {
	TickMinutes   int    `toml:"tick_minutes" validate:"gte=1"`
	CycleDeadline string `toml:"cycle_deadline"`
}

// DigestConfig contains the daily digest schedule
type DigestConfig struct {
	DailyUTC string `toml:"daily_utc"` // "HH:MM" wall-clock, UTC
}

// DedupConfig contains per-channel suppression windows
type DedupConfig struct {
	NoteWindow  string `toml:"note_window"`  // Default "24h"
	EmailWindow string `toml:"email_window"` // Default "5m"
}

// CronConfig contains the external cron trigger secret
type CronConfig struct {
	BearerSecret string `toml:"bearer_secret"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "staging",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		ATS: ATSConfig{
			AuthURL:  "https://auth.bullhornstaffing.com/oauth",
			LoginURL: "https://rest.bullhornstaffing.com/rest-services/login",
			MaxConns: 8,
			Timeout:  "2m",
		},
		Feed: FeedConfig{
			RemotePort:      22,
			RemotePath:      "/feeds",
			Company:         "Vettra Staffing",
			ApplyBaseURL:    "https://jobs.vettra.io/apply",
			TagMapPath:      "./tagmap.yaml",
			ReferenceGCDays: 30,
		},
		Mail: MailConfig{
			Port:     587,
			FromName: "Vettra",
			UseTLS:   true,
		},
		IMAP: IMAPConfig{
			Port:    993,
			Mailbox: "INBOX",
			UseTLS:  true,
		},
		LLM: LLMConfig{
			PrimaryModel:    "claude-haiku-3-5-20241022",
			EscalationModel: "claude-sonnet-4-20250514",
			EmbeddingModel:  "gemini-embedding-001",
			MaxTokens:       8192,
			Temperature:     0.2,
			CallTimeout:     "60s",
		},
		Vetting: VettingConfig{
			Enabled:            true,
			TickMinutes:        5,
			BatchSize:          25,
			MaxCandidates:      3,
			ScoreWorkers:       8,
			MatchThreshold:     80,
			EscalationLow:      60,
			EscalationHigh:     85,
			EmbeddingThreshold: 0.35,
			EmbeddingMinJobs:   5,
			EmbeddingMaxTokens: 8000,
			DetectorWindowMins: 30,
			ResumeMaxAttempts:  3,
			CycleDeadline:      "6m",
		},
		Publish: PublishConfig{
			TickMinutes:   30,
			CycleDeadline: "90s",
		},
		Digest: DigestConfig{
			DailyUTC: "06:00",
		},
		Dedup: DedupConfig{
			NoteWindow:  "24h",
			EmailWindow: "5m",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if config.Vetting.EscalationLow > config.Vetting.EscalationHigh {
		return nil, fmt.Errorf("invalid configuration: escalation_low %d > escalation_high %d",
			config.Vetting.EscalationLow, config.Vetting.EscalationHigh)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VETTRA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VETTRA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VETTRA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("VETTRA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("VETTRA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// ATS credentials
	if v := os.Getenv("VETTRA_ATS_CLIENT_ID"); v != "" {
		config.ATS.ClientID = v
	}
	if v := os.Getenv("VETTRA_ATS_CLIENT_SECRET"); v != "" {
		config.ATS.ClientSecret = v
	}
	if v := os.Getenv("VETTRA_ATS_USERNAME"); v != "" {
		config.ATS.Username = v
	}
	if v := os.Getenv("VETTRA_ATS_PASSWORD"); v != "" {
		config.ATS.Password = v
	}

	// Feed publish target
	if v := os.Getenv("VETTRA_REMOTE_HOST"); v != "" {
		config.Feed.RemoteHost = v
	}
	if v := os.Getenv("VETTRA_REMOTE_USER"); v != "" {
		config.Feed.RemoteUser = v
	}
	if v := os.Getenv("VETTRA_REMOTE_PASSWORD"); v != "" {
		config.Feed.RemotePassword = v
	}
	if v := os.Getenv("VETTRA_REMOTE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Feed.RemotePort = p
		}
	}
	if v := os.Getenv("VETTRA_REMOTE_PATH"); v != "" {
		config.Feed.RemotePath = v
	}
	if v := os.Getenv("VETTRA_FEED_FROZEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Feed.Frozen = b
		}
	}

	// Mail
	if v := os.Getenv("VETTRA_MAIL_HOST"); v != "" {
		config.Mail.Host = v
	}
	if v := os.Getenv("VETTRA_MAIL_USERNAME"); v != "" {
		config.Mail.Username = v
	}
	if v := os.Getenv("VETTRA_MAIL_PASSWORD"); v != "" {
		config.Mail.Password = v
	}
	if v := os.Getenv("VETTRA_MAIL_FROM"); v != "" {
		config.Mail.From = v
	}
	if v := os.Getenv("VETTRA_MAIL_ADMIN_BCC"); v != "" {
		config.Mail.AdminBCC = v
	}

	// IMAP
	if v := os.Getenv("VETTRA_IMAP_HOST"); v != "" {
		config.IMAP.Host = v
	}
	if v := os.Getenv("VETTRA_IMAP_USERNAME"); v != "" {
		config.IMAP.Username = v
	}
	if v := os.Getenv("VETTRA_IMAP_PASSWORD"); v != "" {
		config.IMAP.Password = v
	}

	// LLM keys: standard env vars first, VETTRA_ prefix takes priority
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("VETTRA_ANTHROPIC_API_KEY"); v != "" {
		config.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("VETTRA_GEMINI_API_KEY"); v != "" {
		config.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("VETTRA_LLM_PRIMARY_MODEL"); v != "" {
		config.LLM.PrimaryModel = v
	}
	if v := os.Getenv("VETTRA_LLM_ESCALATION_MODEL"); v != "" {
		config.LLM.EscalationModel = v
	}
	if v := os.Getenv("VETTRA_LLM_EMBEDDING_MODEL"); v != "" {
		config.LLM.EmbeddingModel = v
	}

	// Scheduler
	if v := os.Getenv("VETTRA_VETTING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Vetting.Enabled = b
		}
	}
	if v := os.Getenv("VETTRA_VETTING_TICK_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Vetting.TickMinutes = n
		}
	}
	if v := os.Getenv("VETTRA_VETTING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Vetting.BatchSize = n
		}
	}
	if v := os.Getenv("VETTRA_PUBLISH_TICK_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Publish.TickMinutes = n
		}
	}
	if v := os.Getenv("VETTRA_DIGEST_DAILY_UTC"); v != "" {
		config.Digest.DailyUTC = v
	}

	if v := os.Getenv("VETTRA_CRON_BEARER_SECRET"); v != "" {
		config.Cron.BearerSecret = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string with a fallback for empty/invalid values
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
