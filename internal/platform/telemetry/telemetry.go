// Package telemetry records operational metrics for the evaluation API and
// serves them in Prometheus text exposition format. Everything is kept
// in-process; no collector or SDK is involved.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careloop/careloop/internal/domain/rules"
)

// durationBuckets are the request-duration histogram boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// histogram is a thread-safe histogram with fixed bucket boundaries.
type histogram struct {
	mu           sync.Mutex
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          float64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

// cumulative returns cumulative bucket counts plus the total count and sum.
func (h *histogram) cumulative() ([]int64, int64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

// Provider holds the metric state for one process.
type Provider struct {
	mu         sync.RWMutex
	histograms map[string]*histogram // key: method|route|status
	counters   map[string]*int64

	activeRequests int64
}

// NewProvider creates an empty Provider.
func NewProvider() *Provider {
	return &Provider{
		histograms: make(map[string]*histogram),
		counters:   make(map[string]*int64),
	}
}

func (p *Provider) histogramFor(key string) *histogram {
	p.mu.RLock()
	h, ok := p.histograms[key]
	p.mu.RUnlock()
	if ok {
		return h
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.histograms[key]; !ok {
		h = newHistogram(durationBuckets)
		p.histograms[key] = h
	}
	return h
}

func (p *Provider) inc(key string, delta int64) {
	p.mu.RLock()
	c, ok := p.counters[key]
	p.mu.RUnlock()
	if ok {
		atomic.AddInt64(c, delta)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.counters[key]; !ok {
		c = new(int64)
		p.counters[key] = c
	}
	atomic.AddInt64(c, delta)
}

// Counter returns the current value of a counter, 0 when never incremented.
func (p *Provider) Counter(key string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.counters[key]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(c)
}

// ActiveRequests returns the number of requests currently in flight.
func (p *Provider) ActiveRequests() int64 {
	return atomic.LoadInt64(&p.activeRequests)
}

// RecordEvaluation counts one evaluation run's outcomes.
func (p *Provider) RecordEvaluation(summary map[rules.Outcome]int) {
	for outcome, n := range summary {
		p.inc("evaluations|"+string(outcome), int64(n))
	}
	p.inc("evaluation_runs", 1)
}

// Middleware records request duration and in-flight request counts per route.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.activeRequests, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&p.activeRequests, -1)
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			key := fmt.Sprintf("%s|%s|%d", c.Request().Method, route, c.Response().Status)
			p.histogramFor(key).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the metrics in Prometheus text format.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_request_duration_seconds Duration of HTTP requests.\n")
		b.WriteString("# TYPE http_request_duration_seconds histogram\n")
		p.mu.RLock()
		keys := make([]string, 0, len(p.histograms))
		for k := range p.histograms {
			keys = append(keys, k)
		}
		p.mu.RUnlock()
		sort.Strings(keys)
		for _, key := range keys {
			p.mu.RLock()
			h := p.histograms[key]
			p.mu.RUnlock()
			parts := strings.SplitN(key, "|", 3)
			if len(parts) != 3 {
				continue
			}
			labels := fmt.Sprintf("method=%q,route=%q,status=%q", parts[0], parts[1], parts[2])
			cum, count, sum := h.cumulative()
			for i, boundary := range h.boundaries {
				fmt.Fprintf(&b, "http_request_duration_seconds_bucket{%s,le=\"%g\"} %d\n", labels, boundary, cum[i])
			}
			fmt.Fprintf(&b, "http_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", labels, count)
			fmt.Fprintf(&b, "http_request_duration_seconds_sum{%s} %g\n", labels, sum)
			fmt.Fprintf(&b, "http_request_duration_seconds_count{%s} %d\n", labels, count)
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_active_requests gauge\n")
		fmt.Fprintf(&b, "http_active_requests %d\n\n", p.ActiveRequests())

		b.WriteString("# HELP evaluation_runs_total Total rule evaluation runs.\n")
		b.WriteString("# TYPE evaluation_runs_total counter\n")
		fmt.Fprintf(&b, "evaluation_runs_total %d\n\n", p.Counter("evaluation_runs"))

		b.WriteString("# HELP evaluation_outcomes_total Evaluation result rows by outcome.\n")
		b.WriteString("# TYPE evaluation_outcomes_total counter\n")
		for _, outcome := range []rules.Outcome{rules.OutcomeMatched, rules.OutcomeSkipped, rules.OutcomeNoMatch} {
			fmt.Fprintf(&b, "evaluation_outcomes_total{outcome=%q} %d\n",
				string(outcome), p.Counter("evaluations|"+string(outcome)))
		}

		return c.String(http.StatusOK, b.String())
	}
}
