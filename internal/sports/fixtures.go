// Package sports fetches football fixtures and match events from the
// API-Football service and renders the team-command reports.
package sports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"groupbot/internal/gateway"
)

const (
	fixturesCacheTTL = 2 * time.Hour
	eventsCacheTTL   = 1 * time.Hour
	lastFixtures     = 5
)

type Client struct {
	apiKey  string
	apiBase string
	gw      *gateway.Gateway
	logger  *slog.Logger
}

func NewClient(apiKey, apiBase string, gw *gateway.Gateway, logger *slog.Logger) *Client {
	if apiBase == "" {
		apiBase = "https://api-football-v1.p.rapidapi.com/v3"
	}
	return &Client{apiKey: apiKey, apiBase: apiBase, gw: gw, logger: logger}
}

type fixturesResponse struct {
	Response []fixtureEntry `json:"response"`
}

type fixtureEntry struct {
	Fixture struct {
		ID   int64  `json:"id"`
		Date string `json:"date"`
	} `json:"fixture"`
	Teams struct {
		Home fixtureTeam `json:"home"`
		Away fixtureTeam `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

type fixtureTeam struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type eventsResponse struct {
	Response []matchEvent `json:"response"`
}

type matchEvent struct {
	Type   string `json:"type"`
	Player struct {
		Name string `json:"name"`
	} `json:"player"`
	Time struct {
		Elapsed int `json:"elapsed"`
	} `json:"time"`
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("X-RapidAPI-Key", c.apiKey)
	h.Set("X-RapidAPI-Host", "api-football-v1.p.rapidapi.com")
	return h
}

func (c *Client) lastMatches(ctx context.Context, teamID int64) (*fixturesResponse, error) {
	var out fixturesResponse
	err := c.gw.JSON(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    c.apiBase + "/fixtures",
		Header: c.header(),
		Query: url.Values{
			"team": {strconv.FormatInt(teamID, 10)},
			"last": {strconv.Itoa(lastFixtures)},
		},
		CacheKey: fmt.Sprintf("team_matches_%d", teamID),
		CacheTTL: fixturesCacheTTL,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) matchEvents(ctx context.Context, fixtureID int64) (*eventsResponse, error) {
	var out eventsResponse
	err := c.gw.JSON(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    c.apiBase + "/fixtures/events",
		Header: c.header(),
		Query: url.Values{
			"fixture": {strconv.FormatInt(fixtureID, 10)},
		},
		CacheKey: fmt.Sprintf("match_events_%d", fixtureID),
		CacheTTL: eventsCacheTTL,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TeamReport renders the last matches of a team: result icon, date, score,
// and a goal-scorer line per fixture. Event lookups degrade per fixture.
func (c *Client) TeamReport(ctx context.Context, teamName string, teamID int64) (string, error) {
	data, err := c.lastMatches(ctx, teamID)
	if err != nil {
		return "", err
	}
	if len(data.Response) == 0 {
		return "", fmt.Errorf("no fixtures for team %d", teamID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Последние %d матчей %s:\n\n", lastFixtures, strings.ToUpper(teamName))

	for _, fx := range data.Response {
		homeGoals, awayGoals := 0, 0
		if fx.Goals.Home != nil {
			homeGoals = *fx.Goals.Home
		}
		if fx.Goals.Away != nil {
			awayGoals = *fx.Goals.Away
		}

		date := fx.Fixture.Date
		if i := strings.Index(date, "T"); i > 0 {
			date = date[:i]
		}

		icon := resultIcon(fx.Teams.Home.ID == teamID, homeGoals, awayGoals)
		fmt.Fprintf(&sb, "%s %s: %s %d - %d %s\n",
			icon, date, fx.Teams.Home.Name, homeGoals, awayGoals, fx.Teams.Away.Name)
		sb.WriteString(c.goalsLine(ctx, fx.Fixture.ID))
		sb.WriteString("\n\n")
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

func resultIcon(isHome bool, homeGoals, awayGoals int) string {
	ours, theirs := homeGoals, awayGoals
	if !isHome {
		ours, theirs = awayGoals, homeGoals
	}
	switch {
	case ours > theirs:
		return "🟢"
	case ours < theirs:
		return "🔴"
	default:
		return "🟡"
	}
}

func (c *Client) goalsLine(ctx context.Context, fixtureID int64) string {
	events, err := c.matchEvents(ctx, fixtureID)
	if err != nil {
		c.logger.Warn("match events unavailable", "fixture", fixtureID, "err", err)
		return "Голы: Ошибка получения событий"
	}

	var scorers []string
	for _, e := range events.Response {
		if e.Type == "Goal" {
			scorers = append(scorers, fmt.Sprintf("%s (%d')", e.Player.Name, e.Time.Elapsed))
		}
	}
	if len(scorers) == 0 {
		return "Голы: Нет данных о голах"
	}
	return "Голы: " + strings.Join(scorers, ", ")
}
