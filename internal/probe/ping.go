package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// PingProber checks reachability with a single echo request from the
// system ping binary.
type PingProber struct {
	Command string // defaults to "ping"
	Timeout time.Duration
}

func NewPingProber(timeout time.Duration) *PingProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingProber{Command: "ping", Timeout: timeout}
}

func (p *PingProber) args(address string) []string {
	secs := int(p.Timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	if runtime.GOOS == "windows" {
		return []string{"-n", "1", "-w", strconv.Itoa(secs * 1000), address}
	}
	return []string{"-c", "1", "-W", strconv.Itoa(secs), address}
}

func (p *PingProber) Probe(ctx context.Context, address string) Result {
	name := p.Command
	if name == "" {
		name = "ping"
	}
	// one extra second so ping's own -W fires before we kill it
	cctx, cancel := context.WithTimeout(ctx, p.Timeout+time.Second)
	defer cancel()

	start := time.Now()
	out, err := exec.CommandContext(cctx, name, p.args(address)...).CombinedOutput()
	latency := time.Since(start)
	if err == nil {
		return Result{Status: Reachable, Latency: latency}
	}

	detail := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	switch {
	case cctx.Err() != nil:
		return Result{Status: Unreachable, Latency: latency, Detail: fmt.Sprintf("ping timed out after %s", latency.Round(time.Millisecond))}
	case errors.As(err, &exitErr):
		if detail == "" {
			detail = exitErr.Error()
		}
		return Result{Status: Unreachable, Latency: latency, Detail: detail}
	default:
		return Result{Status: ExecutionError, Latency: latency, Detail: fmt.Sprintf("run %s: %v", name, err)}
	}
}
