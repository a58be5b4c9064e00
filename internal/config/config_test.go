package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Existing deployments use JSON config files.
const legacyJSON = `{
  "telegram_config": {"telegram_api_token": "123:abc", "telegram_chat_ids": [111, -222]},
  "ping_config": {
    "addresses": [
      {"address": "10.0.0.1", "description": "core router"},
      {"address": "db.internal", "description": "primary db", "retry": 5, "sleep_after_alert_secs": 0}
    ],
    "interval_secs": 20,
    "retry": 3,
    "sleep_after_alert_secs": 300
  }
}`

func TestParse_JSONWithOverrides(t *testing.T) {
	cfg, err := Parse([]byte(legacyJSON), Env{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.APIToken != "123:abc" || len(cfg.Telegram.ChatIDs) != 2 || cfg.Telegram.ChatIDs[1] != -222 {
		t.Fatalf("telegram wrong: %+v", cfg.Telegram)
	}

	router := cfg.Ping.ScheduleFor(cfg.Ping.Addresses[0])
	if router.Interval != 20*time.Second || router.Threshold != 3 || router.Cooldown != 300*time.Second {
		t.Fatalf("group schedule wrong: %+v", router)
	}
	if router.Timeout != DefaultTimeoutSecs*time.Second {
		t.Fatalf("default timeout not applied: %+v", router)
	}

	db := cfg.Ping.ScheduleFor(cfg.Ping.Addresses[1])
	if db.Threshold != 5 || db.Interval != 20*time.Second {
		t.Fatalf("override not applied: %+v", db)
	}
	if db.Cooldown != 0 {
		t.Fatalf("explicit zero override must win over group cooldown: %+v", db)
	}

	if cfg.RetryBackoff() != 5*time.Second || cfg.PollTimeout() != 10*time.Second {
		t.Fatalf("alerting defaults wrong: %v %v", cfg.RetryBackoff(), cfg.PollTimeout())
	}
	if cfg.Telegram.APIURL != DefaultTelegramURL {
		t.Fatalf("api url default: %q", cfg.Telegram.APIURL)
	}
}

func TestParse_YAML(t *testing.T) {
	src := `
telegram_config:
  telegram_api_token: "t"
  telegram_chat_ids: [1]
  commands_enabled: true
request_config:
  interval_secs: 60
  addresses:
    - address: https://example.com/health
      description: site
ops:
  addr: ":9090"
events:
  topic_url: mem://alerts
`
	cfg, err := Parse([]byte(src), Env{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Telegram.CommandsEnabled || cfg.Ops.Addr != ":9090" || cfg.Events.TopicURL != "mem://alerts" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if s := cfg.Request.ScheduleFor(cfg.Request.Addresses[0]); s.Interval != time.Minute {
		t.Fatalf("request interval: %+v", s)
	}
}

func TestParse_CollectsAllProblems(t *testing.T) {
	src := `
ping_config:
  retry: -1
  addresses:
    - address: 10.0.0.1
    - address: 10.0.0.1
      description: dup
`
	_, err := Parse([]byte(src), Env{})
	if err == nil {
		t.Fatalf("want validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"telegram_api_token is required",
		"telegram_chat_ids",
		"ping_config.retry must be positive",
		"addresses[0].description is required",
		`duplicate address "10.0.0.1"`,
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %q", msg, want)
		}
	}
}

func TestParse_RejectsTimeoutWithoutInterval(t *testing.T) {
	src := `{
  "telegram_config": {"telegram_api_token": "123:abc", "telegram_chat_ids": [111]},
  "ping_config": {
    "addresses": [{"address": "10.0.0.1", "description": "core router"}],
    "timeout_secs": 60,
    "retry": 3
  }
}`
	_, err := Parse([]byte(src), Env{})
	if err == nil {
		t.Fatalf("expected timeout_secs without interval_secs to be rejected")
	}
	if !strings.Contains(err.Error(), "ping_config.timeout_secs") || !strings.Contains(err.Error(), "interval_secs") {
		t.Fatalf("error should name both keys: %v", err)
	}

	withInterval := strings.Replace(src, `"timeout_secs": 60`, `"timeout_secs": 60, "interval_secs": 120`, 1)
	cfg, err := Parse([]byte(withInterval), Env{})
	if err != nil {
		t.Fatalf("explicit interval should be accepted: %v", err)
	}
	sched := cfg.Ping.ScheduleFor(cfg.Ping.Addresses[0])
	if sched.Interval != 120*time.Second || sched.Timeout != time.Minute {
		t.Fatalf("schedule = %+v", sched)
	}
}

func TestParse_EnvTokenSatisfiesValidation(t *testing.T) {
	src := `
telegram_config:
  telegram_chat_ids: [1]
ping_config:
  addresses: [{address: 10.0.0.1, description: r}]
`
	cfg, err := Parse([]byte(src), Env{TelegramToken: "from-env", OpsAddr: ":7000"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.APIToken != "from-env" || cfg.Ops.Addr != ":7000" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json"), Env{}); err == nil {
		t.Fatalf("want error for missing file")
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(legacyJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, Env{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Ping.Addresses) != 2 {
		t.Fatalf("addresses: %+v", cfg.Ping.Addresses)
	}
}

func TestFromEnv_ParsesAndDefaults(t *testing.T) {
	t.Setenv("HOSTWATCH_LOG_DIR", "./_testlogs")
	t.Setenv("HOSTWATCH_TELEGRAM_API_TOKEN", "secret")
	t.Setenv("OPS_ADDR", ":9191") // unprefixed name is accepted

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if e.LogDir != "./_testlogs" || e.TelegramToken != "secret" || e.OpsAddr != ":9191" {
		t.Fatalf("env wrong: %+v", e)
	}
	if e.ConfigPath != "./config.json" || e.LogLevel != "info" {
		t.Fatalf("defaults wrong: %+v", e)
	}
}
