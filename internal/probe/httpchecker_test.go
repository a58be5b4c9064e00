package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Probe(context.Background(), s.URL)
	if out.Status != Reachable {
		t.Fatalf("want reachable, got %+v", out)
	}
	if out.Latency < 0 {
		t.Fatalf("latency should be >= 0, got %s", out.Latency)
	}
}

func TestHTTPChecker_StatusClasses(t *testing.T) {
	cases := []struct {
		code int
		want Status
	}{
		{http.StatusNoContent, Reachable},
		{http.StatusNotModified, Reachable},
		{http.StatusNotFound, Unreachable},
		{http.StatusServiceUnavailable, Unreachable},
	}
	for _, tc := range cases {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		out := NewHTTPChecker(2*time.Second).Probe(context.Background(), s.URL)
		s.Close()
		if out.Status != tc.want {
			t.Fatalf("status %d: got %+v, want %s", tc.code, out, tc.want)
		}
	}
}

func TestHTTPChecker_Status500CarriesBody(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Probe(context.Background(), s.URL)
	if out.Status != Unreachable {
		t.Fatalf("want unreachable, got %+v", out)
	}
	if !strings.Contains(out.Detail, "500") || !strings.Contains(out.Detail, "boom") {
		t.Fatalf("want status and body in detail, got %q", out.Detail)
	}
}

func TestHTTPChecker_TimeoutIsUnreachable(t *testing.T) {
	// Server sleeps longer than client timeout
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	chk := NewHTTPChecker(50 * time.Millisecond)
	out := chk.Probe(context.Background(), s.URL)
	if out.Status != Unreachable {
		t.Fatalf("want unreachable due to timeout, got %+v", out)
	}
	if out.Detail == "" {
		t.Fatalf("want non-empty error detail")
	}
}

func TestHTTPChecker_BadURLIsExecutionError(t *testing.T) {
	chk := NewHTTPChecker(time.Second)
	out := chk.Probe(context.Background(), "http://bad host\x7f/")
	if out.Status != ExecutionError {
		t.Fatalf("want execution error, got %+v", out)
	}
}
