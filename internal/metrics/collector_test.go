package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.Messages.Inc()
	c.Messages.Inc()
	c.Errors.Add(3)

	if got := c.Messages.Value(); got != 2 {
		t.Errorf("expected 2 messages, got %d", got)
	}
	if got := c.Errors.Value(); got != 3 {
		t.Errorf("expected 3 errors, got %d", got)
	}
}

func TestCollector_CounterIdentity(t *testing.T) {
	c := NewCollector()
	a := c.Counter("groupbot_test_total", "test")
	b := c.Counter("groupbot_test_total", "test")
	a.Inc()
	if b.Value() != 1 {
		t.Error("same name must return the same counter")
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector()
	c.AIRequests.Inc()
	c.DBOperations.Add(5)

	s := c.Snapshot()
	if s.AIRequests != 1 || s.DBOperations != 5 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	if s.Uptime < 0 {
		t.Errorf("negative uptime: %v", s.Uptime)
	}
	if s.MemoryMB <= 0 {
		t.Errorf("memory usage must be positive, got %f", s.MemoryMB)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.Messages.Inc()
	c.Gauge("groupbot_queue_depth", "queue depth").Set(7)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"groupbot_uptime_seconds",
		"# TYPE groupbot_messages_total counter",
		"groupbot_messages_total 1",
		"# TYPE groupbot_queue_depth gauge",
		"groupbot_queue_depth 7",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}
