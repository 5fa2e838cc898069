// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It outputs text/plain in Prometheus exposition format without
// requiring the heavy prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector. It is constructed once at
// startup and passed to the components that need it.
type Collector struct {
	counters  sync.Map // name -> *Counter
	gauges    sync.Map // name -> *Gauge
	startTime time.Time

	Messages     *Counter
	Commands     *Counter
	APIRequests  *Counter
	AIRequests   *Counter
	DBOperations *Counter
	Errors       *Counter
}

// NewCollector creates a collector with the bot's predefined counters.
func NewCollector() *Collector {
	c := &Collector{startTime: time.Now()}
	c.Messages = c.Counter("groupbot_messages_total", "Total messages processed")
	c.Commands = c.Counter("groupbot_commands_total", "Total commands executed")
	c.APIRequests = c.Counter("groupbot_api_requests_total", "Total outbound API requests")
	c.AIRequests = c.Counter("groupbot_ai_requests_total", "Total AI requests")
	c.DBOperations = c.Counter("groupbot_db_operations_total", "Total database operations")
	c.Errors = c.Counter("groupbot_errors_total", "Total errors")
	return c
}

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates a counter with the given name.
func (c *Collector) Counter(name, help string) *Counter {
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help}
	actual, _ := c.counters.LoadOrStore(name, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name.
func (c *Collector) Gauge(name, help string) *Gauge {
	if v, ok := c.gauges.Load(name); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help}
	actual, _ := c.gauges.LoadOrStore(name, g)
	return actual.(*Gauge)
}

// Stats is a point-in-time snapshot used by the /stats command.
type Stats struct {
	Uptime       time.Duration
	MemoryMB     float64
	Messages     int64
	Commands     int64
	APIRequests  int64
	AIRequests   int64
	DBOperations int64
	Errors       int64
}

// Snapshot reads every predefined counter plus process memory usage.
func (c *Collector) Snapshot() Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Stats{
		Uptime:       c.Uptime(),
		MemoryMB:     float64(ms.Alloc) / 1024 / 1024,
		Messages:     c.Messages.Value(),
		Commands:     c.Commands.Value(),
		APIRequests:  c.APIRequests.Value(),
		AIRequests:   c.AIRequests.Value(),
		DBOperations: c.DBOperations.Value(),
		Errors:       c.Errors.Value(),
	}
}

// Handler renders metrics in Prometheus text format.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP groupbot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE groupbot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "groupbot_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		c.counters.Range(func(key, value any) bool {
			ctr := value.(*Counter)
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
			return true
		})

		c.gauges.Range(func(key, value any) bool {
			g := value.(*Gauge)
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
			return true
		})

		fmt.Fprint(w, sb.String())
	}
}
