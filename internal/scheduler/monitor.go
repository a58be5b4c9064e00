package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostwatch/internal/domain"
	"github.com/hamed0406/hostwatch/internal/events"
	"github.com/hamed0406/hostwatch/internal/metrics"
	"github.com/hamed0406/hostwatch/internal/probe"
)

// commandQueue bounds how many bot commands may wait for a busy monitor.
const commandQueue = 4

// MonitorConfig is the read-only schedule of one monitor.
type MonitorConfig struct {
	Interval  time.Duration
	Threshold int           // consecutive failures that trigger an escalation
	Cooldown  time.Duration // extra pause after an escalation
}

// Monitor owns the health state of a single target: its consecutive
// failure count and the alerts still open for the current down episode.
// All state is confined to the goroutine running Run.
type Monitor struct {
	logger *zap.Logger
	target domain.Target
	// probeAddr is what the prober is given; it differs from
	// target.Address only for internationalized hostnames.
	probeAddr string
	prober    probe.Prober
	alerter   AlertSender
	events    *events.Publisher
	metrics   *metrics.Registry
	cfg       MonitorConfig

	commands chan Command

	failures    int
	open        domain.OpenAlertSet
	pausedUntil time.Time
}

func NewMonitor(
	logger *zap.Logger,
	target domain.Target,
	prober probe.Prober,
	alerter AlertSender,
	cfg MonitorConfig,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Monitor{
		logger:    logger.With(zap.String("target", target.Address)),
		target:    target,
		probeAddr: target.Address,
		prober:    prober,
		alerter:   alerter,
		cfg:       cfg,
		commands:  make(chan Command, commandQueue),
	}
}

// WithEvents attaches a lifecycle event publisher.
func (m *Monitor) WithEvents(p *events.Publisher) *Monitor {
	m.events = p
	return m
}

// WithProbeAddress sets the address handed to the prober, such as the
// punycode form of the target.
func (m *Monitor) WithProbeAddress(addr string) *Monitor {
	if addr != "" {
		m.probeAddr = addr
	}
	return m
}

func (m *Monitor) WithMetrics(r *metrics.Registry) *Monitor {
	m.metrics = r
	return m
}

func (m *Monitor) Target() domain.Target { return m.target }

// Commands is where bot commands for this target are delivered.
func (m *Monitor) Commands() chan<- Command { return m.commands }

// Run probes once immediately and then on every tick until ctx is
// cancelled or a stop command arrives. It returns ctx.Err() on
// cancellation and nil when stopped.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor_started",
		zap.String("description", m.target.Description),
		zap.String("kind", string(m.target.Kind)),
		zap.Duration("interval", m.cfg.Interval),
		zap.Int("threshold", m.cfg.Threshold),
		zap.Duration("cooldown", m.cfg.Cooldown),
	)

	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()

	m.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor_stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case cmd := <-m.commands:
			if m.apply(cmd) {
				m.logger.Info("monitor_stopped_by_command", zap.Int64("chat_id", cmd.ChatID))
				return nil
			}
		case <-t.C:
			if now := time.Now(); now.Before(m.pausedUntil) {
				m.logger.Debug("probe_skipped_sleeping", zap.Time("until", m.pausedUntil))
				continue
			}
			m.runOnce(ctx)
		}
	}
}

// apply handles a command and reports whether the monitor must stop.
func (m *Monitor) apply(cmd Command) bool {
	switch cmd.Kind {
	case CommandStop, CommandStopAll:
		return true
	case CommandSleep, CommandSleepAll:
		m.pausedUntil = time.Now().Add(cmd.Duration)
		m.logger.Info("monitor_sleeping", zap.Duration("for", cmd.Duration), zap.Int64("chat_id", cmd.ChatID))
	default:
		m.logger.Warn("command_unknown", zap.Stringer("kind", cmd.Kind))
	}
	return false
}

func (m *Monitor) runOnce(ctx context.Context) {
	res := m.prober.Probe(ctx, m.probeAddr)
	if ctx.Err() != nil {
		// shutting down; the result says nothing about the target
		return
	}
	m.handle(ctx, res)
}

// handle advances the state machine with one probe result.
func (m *Monitor) handle(ctx context.Context, res probe.Result) {
	m.metrics.Inc(metrics.ProbesTotal, "target", m.target.Address, "status", res.Status.String())

	switch res.Status {
	case probe.Reachable:
		m.onSuccess(ctx, res)
	case probe.ExecutionError:
		m.logger.Error("probe_execution_error", zap.String("detail", res.Detail))
		m.onFailure(ctx, res)
	default:
		m.logger.Warn("target_unavailable",
			zap.String("description", m.target.Description),
			zap.String("detail", res.Detail),
			zap.Bool("alert_open", !m.open.Empty()),
		)
		m.onFailure(ctx, res)
	}
}

func (m *Monitor) onSuccess(ctx context.Context, res probe.Result) {
	m.failures = 0
	m.logger.Debug("target_available", zap.Duration("latency", res.Latency))
	if m.open.Empty() {
		return
	}

	body := recoveredBody(m.target)
	resolved := m.open.Retain(func(msg domain.AlertMessage) bool {
		if msg.Target != m.target.Address {
			return true
		}
		ok := m.alerter.Resolve(ctx, msg, body)
		result := "failed"
		if ok {
			result = "resolved"
		}
		m.metrics.Inc(metrics.ResolutionsTotal, "target", m.target.Address, "result", result)
		return !ok
	})
	m.metrics.Set(metrics.OpenAlerts, float64(m.open.Len()), "target", m.target.Address)

	if m.open.Empty() {
		m.logger.Info("target_recovered", zap.Int("resolved", resolved))
		m.events.Publish(ctx, events.Event{
			Kind:        events.KindResolved,
			Target:      m.target.Address,
			Description: m.target.Description,
			Recipients:  resolved,
		})
		return
	}
	m.logger.Warn("alerts_left_open", zap.Int("resolved", resolved), zap.Int("open", m.open.Len()))
}

func (m *Monitor) onFailure(ctx context.Context, res probe.Result) {
	if !m.open.Empty() {
		// already escalated for this episode
		return
	}
	m.failures++
	m.logger.Debug("failure_counted", zap.Int("failures", m.failures), zap.Int("threshold", m.cfg.Threshold))

	switch {
	case res.Status == probe.ExecutionError:
		m.escalate(ctx, executionErrorBody(m.target, res.Detail), res.Detail)
	case m.failures >= m.cfg.Threshold:
		m.escalate(ctx, unavailableBody(m.target), res.Detail)
	}
}

func (m *Monitor) escalate(ctx context.Context, body, detail string) {
	m.logger.Warn("alert_escalating", zap.Int("failures", m.failures), zap.String("detail", detail))
	m.metrics.Inc(metrics.EscalationsTotal, "target", m.target.Address)

	outcomes, err := m.alerter.SendToAll(ctx, body)
	if err != nil {
		m.logger.Error("alert_send_interrupted", zap.Error(err))
	}
	m.open.Add(AlertMessages(m.target.Address, outcomes)...)
	m.failures = 0
	m.metrics.Set(metrics.OpenAlerts, float64(m.open.Len()), "target", m.target.Address)

	m.events.Publish(ctx, events.Event{
		Kind:        events.KindEscalated,
		Target:      m.target.Address,
		Description: m.target.Description,
		Detail:      detail,
		Recipients:  len(outcomes),
	})

	m.cooldown(ctx)
}

func (m *Monitor) cooldown(ctx context.Context) {
	if m.cfg.Cooldown <= 0 {
		return
	}
	m.logger.Debug("alert_cooldown", zap.Duration("for", m.cfg.Cooldown))
	t := time.NewTimer(m.cfg.Cooldown)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
