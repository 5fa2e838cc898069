package sports

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"groupbot/internal/gateway"
	"groupbot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const fixturesJSON = `{"response":[
	{"fixture":{"id":101,"date":"2026-08-20T19:00:00+00:00"},
	 "teams":{"home":{"id":50,"name":"Arsenal"},"away":{"id":60,"name":"Chelsea"}},
	 "goals":{"home":2,"away":1}},
	{"fixture":{"id":102,"date":"2026-08-13T19:00:00+00:00"},
	 "teams":{"home":{"id":70,"name":"Liverpool"},"away":{"id":50,"name":"Arsenal"}},
	 "goals":{"home":3,"away":0}},
	{"fixture":{"id":103,"date":"2026-08-06T19:00:00+00:00"},
	 "teams":{"home":{"id":50,"name":"Arsenal"},"away":{"id":80,"name":"Spurs"}},
	 "goals":{"home":null,"away":null}}
]}`

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	gw := gateway.New(testLogger(), metrics.NewCollector())
	return NewClient("rapid-key", srv.URL, gw, testLogger())
}

func TestClient_TeamReport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fixtures", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-RapidAPI-Key") != "rapid-key" {
			t.Errorf("missing rapidapi key header")
		}
		if r.URL.Query().Get("team") != "50" || r.URL.Query().Get("last") != "5" {
			t.Errorf("unexpected query: %v", r.URL.Query())
		}
		w.Write([]byte(fixturesJSON))
	})
	mux.HandleFunc("/fixtures/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fixture") == "101" {
			w.Write([]byte(`{"response":[
				{"type":"Goal","player":{"name":"Saka"},"time":{"elapsed":23}},
				{"type":"Card","player":{"name":"Rice"},"time":{"elapsed":40}},
				{"type":"Goal","player":{"name":"Havertz"},"time":{"elapsed":67}}
			]}`))
			return
		}
		w.Write([]byte(`{"response":[]}`))
	})

	c := newTestClient(t, mux)
	report, err := c.TeamReport(context.Background(), "arsenal", 50)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(report, "Последние 5 матчей ARSENAL:") {
		t.Errorf("missing header:\n%s", report)
	}
	// Home win, away loss, scoreless draw.
	for _, want := range []string{
		"🟢 2026-08-20: Arsenal 2 - 1 Chelsea",
		"🔴 2026-08-13: Liverpool 3 - 0 Arsenal",
		"🟡 2026-08-06: Arsenal 0 - 0 Spurs",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("missing line %q:\n%s", want, report)
		}
	}
	if !strings.Contains(report, "Голы: Saka (23'), Havertz (67')") {
		t.Errorf("goal scorers wrong:\n%s", report)
	}
	if !strings.Contains(report, "Голы: Нет данных о голах") {
		t.Errorf("fixtures without events need the no-data line:\n%s", report)
	}
}

func TestClient_TeamReportNoFixtures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fixtures", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[]}`))
	})

	c := newTestClient(t, mux)
	if _, err := c.TeamReport(context.Background(), "arsenal", 50); err == nil {
		t.Error("expected error when no fixtures are returned")
	}
}

func TestResultIcon(t *testing.T) {
	cases := []struct {
		isHome     bool
		home, away int
		want       string
	}{
		{true, 2, 0, "🟢"},
		{true, 0, 2, "🔴"},
		{false, 0, 2, "🟢"},
		{false, 2, 0, "🔴"},
		{true, 1, 1, "🟡"},
	}
	for _, tc := range cases {
		if got := resultIcon(tc.isHome, tc.home, tc.away); got != tc.want {
			t.Errorf("resultIcon(%v, %d, %d) = %s, want %s", tc.isHome, tc.home, tc.away, got, tc.want)
		}
	}
}
