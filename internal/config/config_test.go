package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "watch": {
    "cycle_interval": "45s",
    "monitor_pause": 2,
    "platforms": ["bookmyshow"],
    "sample_categories": true,
    "data_dir": "/tmp/seatwatch-test"
  },
  "search": {"match": "IPL", "venue": "Chennai", "tickets": 3},
  "schedule": {"start": "0 9 * * *", "stop": "0 23 * * *"},
  "notify": {
    "discoveries": true,
    "telegram": {"token": "123456:ABC", "chat_id": 42, "allow_from": [100, 200]},
    "webhook": {"url": "https://hooks.example.com/seatwatch", "secret": "s3cret"}
  },
  "journal": {"enabled": true},
  "api": {"port": 9090, "api_key": "dashboard-key"}
}`

const validYAML = `
watch:
  cycle_interval: 1m
  platforms: [insider]
search:
  match: "${SEATWATCH_TEST_MATCH}"
notify:
  slack:
    bot_token: xoxb-1
    app_token: xapp-1
    channel: C123
api:
  api_key: ${SEATWATCH_TEST_KEY}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Watch.CycleInterval.D() != 45*time.Second {
		t.Errorf("cycle_interval = %v", cfg.Watch.CycleInterval)
	}
	if cfg.Watch.MonitorPause.D() != 2*time.Second {
		t.Errorf("monitor_pause = %v", cfg.Watch.MonitorPause)
	}
	if !cfg.Watch.SampleCategories || len(cfg.Watch.Platforms) != 1 {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Search.MatchText != "IPL" || cfg.Search.Venue != "Chennai" || cfg.Search.TicketCount != 3 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Notify.Telegram == nil || cfg.Notify.Telegram.ChatID != 42 || len(cfg.Notify.Telegram.AllowFrom) != 2 {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Notify.Webhook == nil || cfg.Notify.Webhook.Secret != "s3cret" {
		t.Errorf("webhook = %+v", cfg.Notify.Webhook)
	}
	if cfg.Journal.Path != filepath.Join("/tmp/seatwatch-test", "seatwatch.db") {
		t.Errorf("journal.path = %q", cfg.Journal.Path)
	}
	if cfg.API.Port != 9090 || cfg.API.Host != "0.0.0.0" {
		t.Errorf("api = %+v", cfg.API)
	}
}

func TestLoad_YAMLExpandsEnv(t *testing.T) {
	t.Setenv("SEATWATCH_TEST_MATCH", "Ranji")
	t.Setenv("SEATWATCH_TEST_KEY", "k-123")

	cfg, err := Load(writeFile(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.MatchText != "Ranji" {
		t.Errorf("match = %q", cfg.Search.MatchText)
	}
	if cfg.API.Key != "k-123" {
		t.Errorf("api_key = %q", cfg.API.Key)
	}
	if cfg.Watch.CycleInterval.D() != time.Minute {
		t.Errorf("cycle_interval = %v", cfg.Watch.CycleInterval)
	}
	if cfg.Notify.Slack == nil || cfg.Notify.Slack.AppToken != "xapp-1" {
		t.Errorf("slack = %+v", cfg.Notify.Slack)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Watch.CycleInterval.D() != 30*time.Second {
		t.Errorf("cycle_interval = %v", cfg.Watch.CycleInterval)
	}
	if cfg.Watch.MonitorPause.D() != time.Second {
		t.Errorf("monitor_pause = %v", cfg.Watch.MonitorPause)
	}
	if cfg.Watch.CandidateLimit != 200 || cfg.Watch.LogLines != 50 {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Search.MatchText != "Cricket" || cfg.Search.TicketCount != 2 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Journal.Path != "" {
		t.Errorf("journal path set while disabled: %q", cfg.Journal.Path)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("api.port = %d", cfg.API.Port)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	if _, err := Load(writeFile(t, "config.json", "{invalid")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeFile(t, "config.json", `{"watch": {"cycle_interval": "soon"}}`))
	if err == nil || !strings.Contains(err.Error(), "soon") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Watch.Platforms = []string{"ticketmaster"}
	cfg.Schedule.Start = "every morning"
	cfg.Notify.Telegram = &TelegramConfig{}
	cfg.Notify.Slack = &SlackConfig{}
	cfg.Notify.Webhook = &WebhookConfig{URL: "ftp://x"}
	cfg.API.Port = 70000
	cfg.applyDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"ticketmaster",
		"schedule.start",
		"notify.telegram.token",
		"notify.slack.bot_token",
		"notify.slack.channel",
		"notify.webhook.url",
		"api.port",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_Journal(t *testing.T) {
	cfg := &Config{Journal: JournalConfig{Enabled: true, Driver: JournalPostgres}}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "journal.dsn") {
		t.Errorf("postgres without dsn: err = %v", err)
	}
	if cfg.Journal.Path != "" {
		t.Errorf("postgres journal got sqlite path %q", cfg.Journal.Path)
	}

	cfg = &Config{Journal: JournalConfig{Enabled: true, Driver: "mysql"}}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "journal.driver") {
		t.Errorf("unknown driver: err = %v", err)
	}

	cfg = &Config{Journal: JournalConfig{Enabled: true}}
	cfg.applyDefaults()
	if cfg.Journal.Driver != JournalSQLite {
		t.Errorf("default driver = %q", cfg.Journal.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sqlite default: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEATWATCH_MATCH", "Final")
	t.Setenv("SEATWATCH_TICKETS", "4")
	t.Setenv("SEATWATCH_CYCLE_INTERVAL", "10s")
	t.Setenv("SEATWATCH_PLATFORMS", "bookmyshow, insider")
	t.Setenv("SEATWATCH_AUTO_START", "true")
	t.Setenv("SEATWATCH_API_PORT", "9000")
	t.Setenv("SEATWATCH_TELEGRAM_TOKEN", "tok")
	t.Setenv("SEATWATCH_TELEGRAM_CHAT_ID", "77")
	t.Setenv("SEATWATCH_TELEGRAM_ALLOW_FROM", "1, 2")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Search.MatchText != "Final" || cfg.Search.TicketCount != 4 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Watch.CycleInterval.D() != 10*time.Second || !cfg.Watch.AutoStart {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if len(cfg.Watch.Platforms) != 2 {
		t.Errorf("platforms = %v", cfg.Watch.Platforms)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("api.port = %d", cfg.API.Port)
	}
	tg := cfg.Notify.Telegram
	if tg == nil || tg.ChatID != 77 || len(tg.AllowFrom) != 2 || tg.AllowFrom[1] != 2 {
		t.Errorf("telegram = %+v", tg)
	}
}

func TestLoadFromEnv_BadAllowFrom(t *testing.T) {
	t.Setenv("SEATWATCH_TELEGRAM_TOKEN", "tok")
	t.Setenv("SEATWATCH_TELEGRAM_ALLOW_FROM", "1,abc")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("expected error for invalid allow_from")
	}
}
