// cmd/preflight/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/hostwatch/internal/config"
	"github.com/hamed0406/hostwatch/internal/probe"
)

const maxLookups = 8

type report struct {
	out    io.Writer
	failed bool
}

func (r *report) ok(format string, args ...any) {
	fmt.Fprintln(r.out, "✔", fmt.Sprintf(format, args...))
}

func (r *report) warn(format string, args ...any) {
	fmt.Fprintln(r.out, "⚠", fmt.Sprintf(format, args...))
}

func (r *report) fail(format string, args ...any) {
	r.failed = true
	fmt.Fprintln(r.out, "✖", fmt.Sprintf(format, args...))
}

type addressClassifier interface {
	Classify(ctx context.Context, address string) (probe.Classification, error)
}

func main() {
	env, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
	path := env.ConfigPath
	flag.StringVar(&path, "config-path", path, "path to the YAML or JSON config file")
	flag.StringVar(&path, "c", path, "shorthand for -config-path")
	flag.Parse()

	r := &report{out: os.Stdout}
	run(context.Background(), r, path, env, probe.NewClassifier(), exec.LookPath)
	if r.failed {
		os.Exit(1)
	}
	r.ok("preflight passed")
}

func run(ctx context.Context, r *report, path string, env config.Env, cls addressClassifier, lookPath func(string) (string, error)) {
	cfg, err := config.Load(path, env)
	if err != nil {
		errs := multierr.Errors(err)
		for _, e := range errs {
			r.fail("config: %v", e)
		}
		return
	}
	r.ok("config %s loaded (%d ping, %d request targets, %d chats)",
		path, len(cfg.Ping.Addresses), len(cfg.Request.Addresses), len(cfg.Telegram.ChatIDs))

	var checks []check
	for _, a := range cfg.Ping.Addresses {
		checks = append(checks, check{target: a.Address, host: a.Address})
	}
	for _, a := range cfg.Request.Addresses {
		checks = append(checks, check{target: a.Address, host: probe.HostOf(a.Address)})
	}
	classifyAll(ctx, cls, checks)
	for _, c := range checks {
		c.report(r)
	}

	if len(cfg.Ping.Addresses) > 0 {
		if p, err := lookPath("ping"); err != nil {
			r.fail("ping binary not found on PATH: %v", err)
		} else {
			r.ok("ping binary at %s", p)
		}
	}

	if cfg.Ops.Addr == "" {
		r.warn("ops.addr empty; /healthz and /metrics are disabled")
	} else {
		r.ok("ops server on %s", cfg.Ops.Addr)
	}
	if cfg.Events.TopicURL == "" {
		r.warn("events.topic_url empty; lifecycle events are not published")
	} else {
		r.ok("events to %s", cfg.Events.TopicURL)
	}
}

type check struct {
	target string
	host   string
	class  probe.Classification
	err    error
}

// classifyAll resolves up to maxLookups names at a time; results stay in
// config order.
func classifyAll(ctx context.Context, cls addressClassifier, checks []check) {
	sem := semaphore.NewWeighted(maxLookups)
	var wg sync.WaitGroup
	for i := range checks {
		c := &checks[i]
		if c.host == "" {
			c.err = errors.New("no host in URL")
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			c.err = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			c.class, c.err = cls.Classify(ctx, c.host)
		}()
	}
	wg.Wait()
}

func (c check) report(r *report) {
	switch {
	case errors.Is(c.err, probe.ErrInvalidAddress), errors.Is(c.err, probe.ErrUnresolvable):
		r.fail("%s: %s (%v)", c.target, c.class.Class, c.err)
	case c.err != nil:
		r.fail("%s: %v", c.target, c.err)
	case c.class.Class == probe.ClassServFail:
		r.warn("%s: %s, could not verify name (%s)", c.target, c.class.Class, c.class.ResolverError)
	case c.class.Host != "" && c.class.Host != c.host:
		r.ok("%s: %s %s as %s", c.target, c.class.Kind, c.class.Class, c.class.Host)
	default:
		r.ok("%s: %s %s", c.target, c.class.Kind, c.class.Class)
	}
}
