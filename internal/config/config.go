package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/h1v3-io/seatwatch/internal/platform"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Config is the top-level seatwatch configuration.
type Config struct {
	Watch    WatchConfig             `json:"watch" yaml:"watch"`
	Search   protocol.SearchCriteria `json:"search" yaml:"search"`
	Site     SiteConfig              `json:"site" yaml:"site"`
	Schedule ScheduleConfig          `json:"schedule" yaml:"schedule"`
	Notify   NotifyConfig            `json:"notify" yaml:"notify"`
	Journal  JournalConfig           `json:"journal" yaml:"journal"`
	API      APIConfig               `json:"api" yaml:"api"`
}

// WatchConfig controls the scan/monitor loop.
type WatchConfig struct {
	CycleInterval    Duration `json:"cycle_interval" yaml:"cycle_interval"`
	MonitorPause     Duration `json:"monitor_pause" yaml:"monitor_pause"`
	CandidateLimit   int      `json:"candidate_limit" yaml:"candidate_limit"`
	ProbeTimeout     Duration `json:"probe_timeout" yaml:"probe_timeout"`
	MaxProbes        int      `json:"max_probes" yaml:"max_probes"`
	Platforms        []string `json:"platforms,omitempty" yaml:"platforms"` // empty = all
	SampleCategories bool     `json:"sample_categories" yaml:"sample_categories"`
	AutoStart        bool     `json:"auto_start" yaml:"auto_start"`
	DataDir          string   `json:"data_dir" yaml:"data_dir"`
	LogLines         int      `json:"log_lines" yaml:"log_lines"`
}

// SiteConfig configures HTTP site sessions.
type SiteConfig struct {
	UserAgent      string   `json:"user_agent,omitempty" yaml:"user_agent"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
}

// ScheduleConfig holds cron expressions that start and stop watching.
type ScheduleConfig struct {
	Start string `json:"start,omitempty" yaml:"start"`
	Stop  string `json:"stop,omitempty" yaml:"stop"`
}

// NotifyConfig holds operator channels.
type NotifyConfig struct {
	Discoveries bool            `json:"discoveries" yaml:"discoveries"`
	Telegram    *TelegramConfig `json:"telegram,omitempty" yaml:"telegram"`
	Slack       *SlackConfig    `json:"slack,omitempty" yaml:"slack"`
	Webhook     *WebhookConfig  `json:"webhook,omitempty" yaml:"webhook"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token" yaml:"token"`
	ChatID    int64   `json:"chat_id" yaml:"chat_id"`
	AllowFrom []int64 `json:"allow_from,omitempty" yaml:"allow_from"`
}

// SlackConfig holds Slack bot settings. AppToken enables Socket Mode commands.
type SlackConfig struct {
	BotToken  string   `json:"bot_token" yaml:"bot_token"`
	AppToken  string   `json:"app_token,omitempty" yaml:"app_token"`
	Channel   string   `json:"channel" yaml:"channel"`
	AllowFrom []string `json:"allow_from,omitempty" yaml:"allow_from"`
}

// WebhookConfig holds outbound webhook settings.
type WebhookConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Secret  string            `json:"secret,omitempty" yaml:"secret"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`
}

// Journal drivers.
const (
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// JournalConfig controls the audit journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver,omitempty" yaml:"driver"` // sqlite (default) or postgres
	Path    string `json:"path,omitempty" yaml:"path"`     // sqlite file, default <data_dir>/seatwatch.db
	DSN     string `json:"dsn,omitempty" yaml:"dsn"`       // postgres connection string
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Key  string `json:"api_key" yaml:"api_key"`
}

// Load reads configuration from a JSON or YAML file, chosen by extension.
// YAML files may reference environment variables as ${VAR}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with the SEATWATCH_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Watch: WatchConfig{
			CycleInterval:    Duration(getenvDuration("SEATWATCH_CYCLE_INTERVAL", 0)),
			MonitorPause:     Duration(getenvDuration("SEATWATCH_MONITOR_PAUSE", 0)),
			CandidateLimit:   getenvInt("SEATWATCH_CANDIDATE_LIMIT", 0),
			ProbeTimeout:     Duration(getenvDuration("SEATWATCH_PROBE_TIMEOUT", 0)),
			MaxProbes:        getenvInt("SEATWATCH_MAX_PROBES", 0),
			Platforms:        splitList(os.Getenv("SEATWATCH_PLATFORMS")),
			SampleCategories: getenvBool("SEATWATCH_SAMPLE_CATEGORIES"),
			AutoStart:        getenvBool("SEATWATCH_AUTO_START"),
			DataDir:          os.Getenv("SEATWATCH_DATA_DIR"),
		},
		Search: protocol.SearchCriteria{
			MatchText:   os.Getenv("SEATWATCH_MATCH"),
			Venue:       os.Getenv("SEATWATCH_VENUE"),
			Date:        os.Getenv("SEATWATCH_DATE"),
			Time:        os.Getenv("SEATWATCH_TIME"),
			TicketCount: getenvInt("SEATWATCH_TICKETS", 0),
		},
		Site: SiteConfig{
			UserAgent: os.Getenv("SEATWATCH_USER_AGENT"),
		},
		Schedule: ScheduleConfig{
			Start: os.Getenv("SEATWATCH_SCHEDULE_START"),
			Stop:  os.Getenv("SEATWATCH_SCHEDULE_STOP"),
		},
		Journal: JournalConfig{
			Enabled: getenvBool("SEATWATCH_JOURNAL"),
			Driver:  os.Getenv("SEATWATCH_JOURNAL_DRIVER"),
			Path:    os.Getenv("SEATWATCH_JOURNAL_PATH"),
			DSN:     os.Getenv("SEATWATCH_JOURNAL_DSN"),
		},
		API: APIConfig{
			Host: os.Getenv("SEATWATCH_API_HOST"),
			Port: getenvInt("SEATWATCH_API_PORT", 0),
			Key:  os.Getenv("SEATWATCH_API_KEY"),
		},
	}
	cfg.Notify.Discoveries = getenvBool("SEATWATCH_NOTIFY_DISCOVERIES")

	if token := os.Getenv("SEATWATCH_TELEGRAM_TOKEN"); token != "" {
		tg := &TelegramConfig{Token: token}
		if id := os.Getenv("SEATWATCH_TELEGRAM_CHAT_ID"); id != "" {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("config: SEATWATCH_TELEGRAM_CHAT_ID: invalid integer %q", id)
			}
			tg.ChatID = n
		}
		if ids := os.Getenv("SEATWATCH_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: SEATWATCH_TELEGRAM_ALLOW_FROM: %w", err)
			}
			tg.AllowFrom = parsed
		}
		cfg.Notify.Telegram = tg
	}
	if token := os.Getenv("SEATWATCH_SLACK_BOT_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			BotToken:  token,
			AppToken:  os.Getenv("SEATWATCH_SLACK_APP_TOKEN"),
			Channel:   os.Getenv("SEATWATCH_SLACK_CHANNEL"),
			AllowFrom: splitList(os.Getenv("SEATWATCH_SLACK_ALLOW_FROM")),
		}
	}
	if u := os.Getenv("SEATWATCH_WEBHOOK_URL"); u != "" {
		cfg.Notify.Webhook = &WebhookConfig{URL: u, Secret: os.Getenv("SEATWATCH_WEBHOOK_SECRET")}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	w := &c.Watch
	if w.CycleInterval <= 0 {
		w.CycleInterval = Duration(30 * time.Second)
	}
	if w.MonitorPause <= 0 {
		w.MonitorPause = Duration(time.Second)
	}
	if w.CandidateLimit <= 0 {
		w.CandidateLimit = 200
	}
	if w.MaxProbes <= 0 {
		w.MaxProbes = 2
	}
	if w.ProbeTimeout <= 0 {
		w.ProbeTimeout = Duration(45 * time.Second)
	}
	if w.DataDir == "" {
		w.DataDir = "./data"
	}
	if w.LogLines <= 0 {
		w.LogLines = 50
	}
	if strings.TrimSpace(c.Search.MatchText) == "" {
		c.Search.MatchText = "Cricket"
	}
	c.Search = c.Search.Normalized()
	if c.Site.RequestTimeout <= 0 {
		c.Site.RequestTimeout = Duration(30 * time.Second)
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalSQLite
	}
	if c.Journal.Enabled && c.Journal.Driver == JournalSQLite && c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(w.DataDir, "seatwatch.db")
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate checks for required and well-formed fields.
func (c *Config) Validate() error {
	var errs []string

	if _, unknown := platform.Select(c.Watch.Platforms); len(unknown) > 0 {
		errs = append(errs, fmt.Sprintf("watch.platforms: unknown platform(s) %s", strings.Join(unknown, ", ")))
	}
	if c.Search.TicketCount < 0 {
		errs = append(errs, "search.tickets must not be negative")
	}
	for name, expr := range map[string]string{"schedule.start": c.Schedule.Start, "schedule.stop": c.Schedule.Stop} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid cron expression %q", name, expr))
		}
	}

	if tg := c.Notify.Telegram; tg != nil && tg.Token == "" {
		errs = append(errs, "notify.telegram.token is required")
	}
	if sl := c.Notify.Slack; sl != nil {
		if sl.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required")
		}
		if sl.Channel == "" {
			errs = append(errs, "notify.slack.channel is required")
		}
	}
	if wh := c.Notify.Webhook; wh != nil {
		if !strings.HasPrefix(wh.URL, "http://") && !strings.HasPrefix(wh.URL, "https://") {
			errs = append(errs, "notify.webhook.url must be an http(s) URL")
		}
	}

	if j := c.Journal; j.Enabled {
		switch j.Driver {
		case JournalSQLite:
		case JournalPostgres:
			if j.DSN == "" {
				errs = append(errs, "journal.dsn is required for the postgres driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("journal.driver: unknown driver %q", j.Driver))
		}
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}

	if len(errs) > 0 {
		slices.Sort(errs) // map iteration order
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64List(s string) ([]int64, error) {
	parts := splitList(s)
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
