package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/guregu/null/v5"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Defaults applied when fields are absent from the config file.
const (
	DefaultIntervalSecs     = 30
	DefaultTimeoutSecs      = 5
	DefaultRetry            = 3
	DefaultRetryBackoffSecs = 5
	DefaultPollTimeoutSecs  = 10
	DefaultTelegramURL      = "https://api.telegram.org"
)

// Config is the whole configuration file. JSON files are accepted as well,
// since they parse as YAML.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram_config"`
	Ping     ProbeConfig    `yaml:"ping_config"`
	Request  ProbeConfig    `yaml:"request_config"`
	Alerting AlertingConfig `yaml:"alerting"`
	Ops      OpsConfig      `yaml:"ops"`
	Events   EventsConfig   `yaml:"events"`
}

type TelegramConfig struct {
	APIToken        string  `yaml:"telegram_api_token"`
	ChatIDs         []int64 `yaml:"telegram_chat_ids"`
	APIURL          string  `yaml:"api_url"`
	CommandsEnabled bool    `yaml:"commands_enabled"`
	PollTimeoutSecs int     `yaml:"poll_timeout_secs"`
}

// ProbeConfig groups targets probed the same way (ICMP for ping_config,
// HTTP GET for request_config) with their shared schedule.
type ProbeConfig struct {
	Addresses           []AddressConfig `yaml:"addresses"`
	IntervalSecs        int             `yaml:"interval_secs"`
	TimeoutSecs         int             `yaml:"timeout_secs"`
	Retry               int             `yaml:"retry"`
	SleepAfterAlertSecs int             `yaml:"sleep_after_alert_secs"`
}

// AddressConfig is one target. The optional fields override the group's
// schedule for this target only.
type AddressConfig struct {
	Address             string   `yaml:"address"`
	Description         string   `yaml:"description"`
	IntervalSecs        null.Int `yaml:"interval_secs"`
	Retry               null.Int `yaml:"retry"`
	SleepAfterAlertSecs null.Int `yaml:"sleep_after_alert_secs"`
}

type AlertingConfig struct {
	RetryBackoffSecs int `yaml:"retry_backoff_secs"`
}

type OpsConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type EventsConfig struct {
	TopicURL string `yaml:"topic_url"`
}

// Schedule is the resolved per-target timing.
type Schedule struct {
	Interval  time.Duration
	Timeout   time.Duration
	Threshold int
	Cooldown  time.Duration
}

// Load reads the file at path, applies env overrides and defaults, and
// validates the result.
func Load(path string, env Env) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, env)
}

func Parse(data []byte, env Env) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyEnv(env)
	legacy := multierr.Combine(
		cfg.Ping.checkTimeoutMeaning("ping_config"),
		cfg.Request.checkTimeoutMeaning("request_config"),
	)
	cfg.ApplyDefaults()
	if err := multierr.Append(legacy, cfg.Validate()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = DefaultTelegramURL
	}
	if c.Telegram.PollTimeoutSecs <= 0 {
		c.Telegram.PollTimeoutSecs = DefaultPollTimeoutSecs
	}
	if c.Alerting.RetryBackoffSecs <= 0 {
		c.Alerting.RetryBackoffSecs = DefaultRetryBackoffSecs
	}
	for _, p := range []*ProbeConfig{&c.Ping, &c.Request} {
		if p.IntervalSecs == 0 {
			p.IntervalSecs = DefaultIntervalSecs
		}
		if p.TimeoutSecs == 0 {
			p.TimeoutSecs = DefaultTimeoutSecs
		}
		if p.Retry == 0 {
			p.Retry = DefaultRetry
		}
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.Telegram.APIToken == "" {
		err = multierr.Append(err, errors.New("telegram_config.telegram_api_token is required"))
	}
	if len(c.Telegram.ChatIDs) == 0 {
		err = multierr.Append(err, errors.New("telegram_config.telegram_chat_ids must list at least one chat"))
	}
	if len(c.Ping.Addresses)+len(c.Request.Addresses) == 0 {
		err = multierr.Append(err, errors.New("no addresses configured in ping_config or request_config"))
	}
	err = multierr.Append(err, c.Ping.validate("ping_config"))
	err = multierr.Append(err, c.Request.validate("request_config"))
	return err
}

// checkTimeoutMeaning rejects groups that set timeout_secs without
// interval_secs. Older config files used timeout_secs as the probe
// interval; here it bounds a single probe, so such a file would silently
// poll at the default interval.
func (p *ProbeConfig) checkTimeoutMeaning(section string) error {
	if p.TimeoutSecs != 0 && p.IntervalSecs == 0 {
		return fmt.Errorf("%s.timeout_secs is the per-probe timeout, not the probe interval; set %s.interval_secs", section, section)
	}
	return nil
}

func (p *ProbeConfig) validate(section string) error {
	var err error
	if p.IntervalSecs <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.interval_secs must be positive", section))
	}
	if p.TimeoutSecs <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.timeout_secs must be positive", section))
	}
	if p.Retry <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.retry must be positive", section))
	}
	if p.SleepAfterAlertSecs < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.sleep_after_alert_secs must not be negative", section))
	}

	seen := make(map[string]bool, len(p.Addresses))
	for i, a := range p.Addresses {
		where := fmt.Sprintf("%s.addresses[%d]", section, i)
		if a.Address == "" {
			err = multierr.Append(err, fmt.Errorf("%s.address is required", where))
		} else if seen[a.Address] {
			err = multierr.Append(err, fmt.Errorf("%s: duplicate address %q", where, a.Address))
		}
		seen[a.Address] = true
		if a.Description == "" {
			err = multierr.Append(err, fmt.Errorf("%s.description is required", where))
		}
		if a.IntervalSecs.Valid && a.IntervalSecs.Int64 <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.interval_secs must be positive", where))
		}
		if a.Retry.Valid && a.Retry.Int64 <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.retry must be positive", where))
		}
		if a.SleepAfterAlertSecs.Valid && a.SleepAfterAlertSecs.Int64 < 0 {
			err = multierr.Append(err, fmt.Errorf("%s.sleep_after_alert_secs must not be negative", where))
		}
	}
	return err
}

// ScheduleFor merges a target's overrides onto its group's settings.
func (p ProbeConfig) ScheduleFor(a AddressConfig) Schedule {
	return Schedule{
		Interval:  secs(a.IntervalSecs.ValueOrZero(), int64(p.IntervalSecs), a.IntervalSecs.Valid),
		Timeout:   time.Duration(p.TimeoutSecs) * time.Second,
		Threshold: int(pick(a.Retry.ValueOrZero(), int64(p.Retry), a.Retry.Valid)),
		Cooldown:  secs(a.SleepAfterAlertSecs.ValueOrZero(), int64(p.SleepAfterAlertSecs), a.SleepAfterAlertSecs.Valid),
	}
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Alerting.RetryBackoffSecs) * time.Second
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSecs) * time.Second
}

// ApplyEnv lets the process environment override secrets and listen addresses.
func (c *Config) ApplyEnv(e Env) {
	if e.TelegramToken != "" {
		c.Telegram.APIToken = e.TelegramToken
	}
	if e.OpsAddr != "" {
		c.Ops.Addr = e.OpsAddr
	}
}

func pick(override, def int64, valid bool) int64 {
	if valid {
		return override
	}
	return def
}

func secs(override, def int64, valid bool) time.Duration {
	return time.Duration(pick(override, def, valid)) * time.Second
}
