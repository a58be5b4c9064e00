package scheduler

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostwatch/internal/domain"
	"github.com/hamed0406/hostwatch/internal/notify"
	"github.com/hamed0406/hostwatch/internal/probe"
)

// recordingClassifier remembers which hosts were classified.
type recordingClassifier struct {
	mu    sync.Mutex
	hosts []string
	inner *probe.Classifier
}

func (r *recordingClassifier) Classify(ctx context.Context, address string) (probe.Classification, error) {
	r.mu.Lock()
	r.hosts = append(r.hosts, address)
	r.mu.Unlock()
	return r.inner.Classify(ctx, address)
}

type staticResolver map[string][]net.IPAddr

func (s staticResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if addrs, ok := s[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func newRecordingClassifier() *recordingClassifier {
	return &recordingClassifier{inner: &probe.Classifier{
		Resolver: staticResolver{
			"example.com":           {{IP: net.ParseIP("93.184.216.34")}},
			"xn--bcher-kva.example": {{IP: net.ParseIP("192.0.2.7")}},
		},
		Timeout: time.Second,
	}}
}

func TestSupervisor_InvalidAddressAbortsBeforeProbing(t *testing.T) {
	var probes atomic.Int64
	p := probe.ProberFunc(func(context.Context, string) probe.Result {
		probes.Add(1)
		return probe.Result{Status: probe.Reachable}
	})
	al := &fakeAlerter{recipients: []int64{1}}
	s := &Supervisor{Logger: zap.NewNop(), Alerter: al, Classifier: newRecordingClassifier()}

	err := s.Start(context.Background(), []Watch{
		{Target: domain.Target{Address: "10.0.0.1", Description: "ok", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
		{Target: domain.Target{Address: "not a host!", Description: "bad", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
	})
	if !errors.Is(err, probe.ErrInvalidAddress) {
		t.Fatalf("want ErrInvalidAddress, got %v", err)
	}
	if probes.Load() != 0 {
		t.Fatalf("no target may be probed when validation fails, got %d probes", probes.Load())
	}
	if al.sendCount() != 0 {
		t.Fatalf("no alert may be sent when validation fails")
	}
}

func TestSupervisor_UnresolvableHostAborts(t *testing.T) {
	s := &Supervisor{Logger: zap.NewNop(), Alerter: &fakeAlerter{}, Classifier: newRecordingClassifier()}
	err := s.Start(context.Background(), []Watch{
		{Target: domain.Target{Address: "missing.invalid", Kind: domain.KindPing}, Prober: probe.ProberFunc(func(context.Context, string) probe.Result { return probe.Result{} })},
	})
	if !errors.Is(err, probe.ErrUnresolvable) {
		t.Fatalf("want ErrUnresolvable, got %v", err)
	}
}

func TestSupervisor_NoWatches(t *testing.T) {
	s := &Supervisor{Logger: zap.NewNop(), Alerter: &fakeAlerter{}, Classifier: newRecordingClassifier()}
	if err := s.Start(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty watch list")
	}
}

func TestSupervisor_ClassifiesHTTPHost(t *testing.T) {
	cls := newRecordingClassifier()
	s := &Supervisor{Logger: zap.NewNop(), Alerter: &fakeAlerter{}, Classifier: cls}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Start(ctx, []Watch{
		{Target: domain.Target{Address: "https://example.com/health", Kind: domain.KindHTTP},
			Prober: probe.ProberFunc(func(context.Context, string) probe.Result { return probe.Result{Status: probe.Reachable} })},
	})
	if err != nil {
		t.Fatalf("cancelled run should end cleanly, got %v", err)
	}
	if len(cls.hosts) != 1 || cls.hosts[0] != "example.com" {
		t.Fatalf("HTTP target should be classified by host, got %v", cls.hosts)
	}
}

func TestSupervisor_RunsMonitorsUntilCancelled(t *testing.T) {
	var probes atomic.Int64
	p := probe.ProberFunc(func(context.Context, string) probe.Result {
		probes.Add(1)
		return probe.Result{Status: probe.Reachable}
	})
	s := &Supervisor{Logger: zap.NewNop(), Alerter: &fakeAlerter{}, Classifier: newRecordingClassifier()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Start(ctx, []Watch{
		{Target: domain.Target{Address: "10.0.0.1", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: 5 * time.Millisecond}},
		{Target: domain.Target{Address: "example.com", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: 5 * time.Millisecond}},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline error, got %v", err)
	}
	if probes.Load() < 2 {
		t.Fatalf("both monitors should have probed, got %d", probes.Load())
	}
}

func TestSupervisor_StopAllCommandEndsStart(t *testing.T) {
	src := &fakeUpdates{batches: [][]notify.Update{{commandUpdate(1, 42, "/stopall")}}}
	p := probe.ProberFunc(func(context.Context, string) probe.Result { return probe.Result{Status: probe.Reachable} })
	s := &Supervisor{
		Logger:     zap.NewNop(),
		Alerter:    &fakeAlerter{},
		Classifier: newRecordingClassifier(),
		Commands:   NewCommandListener(zap.NewNop(), src, []int64{42}, time.Second, nil),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Start(context.Background(), []Watch{
			{Target: domain.Target{Address: "10.0.0.1", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
			{Target: domain.Target{Address: "10.0.0.2", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
		})
	}()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("stopall should end Start cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor did not stop after /stopall")
	}
}

func TestSupervisor_ProbesInternationalNamesInASCII(t *testing.T) {
	var mu sync.Mutex
	probed := map[string]bool{}
	p := probe.ProberFunc(func(_ context.Context, addr string) probe.Result {
		mu.Lock()
		probed[addr] = true
		mu.Unlock()
		return probe.Result{Status: probe.Reachable}
	})
	s := &Supervisor{Logger: zap.NewNop(), Alerter: &fakeAlerter{}, Classifier: newRecordingClassifier()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = s.Start(ctx, []Watch{
		{Target: domain.Target{Address: "bücher.example", Kind: domain.KindPing}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
		{Target: domain.Target{Address: "https://bücher.example:8443/health", Kind: domain.KindHTTP}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
		{Target: domain.Target{Address: "https://example.com/health", Kind: domain.KindHTTP}, Prober: p, Config: MonitorConfig{Interval: time.Hour}},
	})

	mu.Lock()
	defer mu.Unlock()
	for _, want := range []string{"xn--bcher-kva.example", "https://xn--bcher-kva.example:8443/health", "https://example.com/health"} {
		if !probed[want] {
			t.Fatalf("expected a probe of %q, got %v", want, probed)
		}
	}
	if probed["bücher.example"] {
		t.Fatalf("unicode name reached the prober: %v", probed)
	}
}
