package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyDetail caps how much of an error response body ends up in an alert.
const maxBodyDetail = 512

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Probe issues a GET. 2xx and 3xx count as reachable; transport errors and
// other statuses as unreachable. Only a request that cannot be built is an
// execution error.
func (h *HTTPChecker) Probe(ctx context.Context, target string) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Status: ExecutionError, Detail: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: Unreachable, Detail: err.Error(), Latency: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return Result{Status: Reachable, Latency: latency}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyDetail))
	detail := fmt.Sprintf("status code: %s", resp.Status)
	if b := strings.TrimSpace(string(body)); b != "" {
		detail += ", body: " + b
	}
	return Result{Status: Unreachable, Detail: detail, Latency: latency}
}
