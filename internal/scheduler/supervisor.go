package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/hostwatch/internal/domain"
	"github.com/hamed0406/hostwatch/internal/events"
	"github.com/hamed0406/hostwatch/internal/metrics"
	"github.com/hamed0406/hostwatch/internal/probe"
)

// Watch is one target to monitor and how.
type Watch struct {
	Target domain.Target
	Prober probe.Prober
	Config MonitorConfig
}

// AddressClassifier validates addresses before any monitor starts.
type AddressClassifier interface {
	Classify(ctx context.Context, address string) (probe.Classification, error)
}

type Supervisor struct {
	Logger     *zap.Logger
	Alerter    AlertSender
	Classifier AddressClassifier
	Events     *events.Publisher
	Metrics    *metrics.Registry
	// Commands is optional; when set, bot commands are routed to monitors.
	Commands *CommandListener
}

// Start validates every watch, then runs one monitor per watch until ctx is
// cancelled or all monitors have been stopped by command. An invalid
// address aborts before anything starts.
func (s *Supervisor) Start(ctx context.Context, watches []Watch) error {
	monitors, err := s.prepare(ctx, watches)
	if err != nil {
		return err
	}

	routes := make(map[string]chan<- Command, len(monitors))
	for _, m := range monitors {
		routes[m.Target().Address] = m.Commands()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range monitors {
		m := m
		g.Go(func() error { return m.Run(gctx) })
	}

	lctx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	listenerDone := make(chan struct{})
	if s.Commands != nil {
		go func() {
			defer close(listenerDone)
			_ = s.Commands.Run(lctx, routes)
		}()
	} else {
		close(listenerDone)
	}

	s.Logger.Info("supervisor_started", zap.Int("monitors", len(monitors)))
	err = g.Wait()
	stopListener()
	<-listenerDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.Logger.Info("supervisor_stopped")
	return nil
}

func (s *Supervisor) prepare(ctx context.Context, watches []Watch) ([]*Monitor, error) {
	if len(watches) == 0 {
		return nil, errors.New("no targets to monitor")
	}
	monitors := make([]*Monitor, 0, len(watches))
	for _, w := range watches {
		host := w.Target.Address
		if w.Target.Kind == domain.KindHTTP {
			host = probe.HostOf(w.Target.Address)
		}
		c, err := s.Classifier.Classify(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("target %q (%s): %w", w.Target.Address, w.Target.Description, err)
		}
		fields := []zap.Field{
			zap.String("target", w.Target.Address),
			zap.Stringer("address_kind", c.Kind),
			zap.String("class", c.Class),
		}
		if c.Host != "" && c.Host != host {
			fields = append(fields, zap.String("ascii_host", c.Host))
		}
		if c.Class == probe.ClassServFail {
			s.Logger.Warn("target_dns_unverified", append(fields, zap.String("resolver_error", c.ResolverError))...)
		} else {
			s.Logger.Debug("target_classified", fields...)
		}

		m := NewMonitor(s.Logger, w.Target, w.Prober, s.Alerter, w.Config).
			WithProbeAddress(probeAddress(w.Target, c)).
			WithEvents(s.Events).
			WithMetrics(s.Metrics)
		monitors = append(monitors, m)
	}
	return monitors, nil
}

// probeAddress is the target address with its hostname in ASCII form.
func probeAddress(t domain.Target, c probe.Classification) string {
	if c.Kind != probe.AddressHostname || c.Host == "" {
		return t.Address
	}
	if t.Kind == domain.KindHTTP {
		if probe.HostOf(t.Address) == c.Host {
			return t.Address
		}
		return probe.SetHost(t.Address, c.Host)
	}
	return c.Host
}
