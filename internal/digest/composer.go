// Package digest gathers weather, currency, and crypto data and renders the
// scheduled morning message. It never touches the conversation store.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"groupbot/internal/config"
	"groupbot/internal/gateway"
)

const (
	weatherCacheTTL  = 30 * time.Minute
	currencyCacheTTL = 1 * time.Hour
	cryptoCacheTTL   = 1 * time.Hour

	noData = "Нет данных"
)

// Composer renders the daily digest from the configured data sources.
type Composer struct {
	weatherKey   string
	weatherBase  string
	currencyURL  string
	currencyCode []string
	cryptoBase   string
	coins        []string
	cities       []config.CityEntry

	gw     *gateway.Gateway
	logger *slog.Logger
}

type Config struct {
	WeatherKey    string
	WeatherBase   string
	CurrencyURL   string
	CurrencyCodes []string
	CryptoBase    string
	Coins         []string
	Cities        []config.CityEntry
}

func NewComposer(cfg Config, gw *gateway.Gateway, logger *slog.Logger) *Composer {
	if cfg.WeatherBase == "" {
		cfg.WeatherBase = "http://api.openweathermap.org/data/2.5"
	}
	if cfg.CryptoBase == "" {
		cfg.CryptoBase = "https://api.coingecko.com/api/v3"
	}
	return &Composer{
		weatherKey:   cfg.WeatherKey,
		weatherBase:  cfg.WeatherBase,
		currencyURL:  cfg.CurrencyURL,
		currencyCode: cfg.CurrencyCodes,
		cryptoBase:   cfg.CryptoBase,
		coins:        cfg.Coins,
		cities:       cfg.Cities,
		gw:           gw,
		logger:       logger,
	}
}

type weatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Weather returns a one-line summary for a city query, e.g. "-3.2°C, снег".
func (c *Composer) Weather(ctx context.Context, cityQuery string) (string, error) {
	var out weatherResponse
	err := c.gw.JSON(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    c.weatherBase + "/weather",
		Query: url.Values{
			"q":     {cityQuery},
			"appid": {c.weatherKey},
			"units": {"metric"},
			"lang":  {"ru"},
		},
		CacheKey: "weather_" + cityQuery,
		CacheTTL: weatherCacheTTL,
	}, &out)
	if err != nil {
		return "", err
	}

	desc := ""
	if len(out.Weather) > 0 {
		desc = out.Weather[0].Description
	}
	return fmt.Sprintf("%.1f°C, %s", out.Main.Temp, desc), nil
}

// Rates returns USD conversion rates for the configured currency codes.
// Missing codes come back as 0.
func (c *Composer) Rates(ctx context.Context) (map[string]float64, error) {
	var out struct {
		USD map[string]float64 `json:"usd"`
	}
	err := c.gw.JSON(ctx, gateway.Request{
		Method:   http.MethodGet,
		URL:      c.currencyURL,
		CacheKey: "currency_rates",
		CacheTTL: currencyCacheTTL,
	}, &out)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(c.currencyCode))
	for _, code := range c.currencyCode {
		rates[code] = out.USD[code]
	}
	return rates, nil
}

// Prices returns USD prices for the configured coins. Missing coins are 0.
func (c *Composer) Prices(ctx context.Context) (map[string]float64, error) {
	var out map[string]map[string]float64
	err := c.gw.JSON(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    c.cryptoBase + "/simple/price",
		Query: url.Values{
			"ids":           {strings.Join(c.coins, ",")},
			"vs_currencies": {"usd"},
		},
		CacheKey: "crypto_prices",
		CacheTTL: cryptoCacheTTL,
	}, &out)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(c.coins))
	for _, coin := range c.coins {
		prices[coin] = out[coin]["usd"]
	}
	return prices, nil
}

// Compose issues all data-source calls in parallel and renders the digest.
// Every individual failure degrades only its own line.
func (c *Composer) Compose(ctx context.Context) string {
	weatherLines := make([]string, len(c.cities))
	var rates map[string]float64
	var prices map[string]float64

	var wg sync.WaitGroup
	for i, city := range c.cities {
		wg.Add(1)
		go func(i int, city config.CityEntry) {
			defer wg.Done()
			line, err := c.Weather(ctx, city.Query)
			if err != nil {
				c.logger.Warn("weather unavailable", "city", city.Query, "err", err)
				line = noData
			}
			weatherLines[i] = fmt.Sprintf("🌥 *%s*: %s", city.Name, line)
		}(i, city)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		rates, err = c.Rates(ctx)
		if err != nil {
			c.logger.Warn("currency rates unavailable", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		prices, err = c.Prices(ctx)
		if err != nil {
			c.logger.Warn("crypto prices unavailable", "err", err)
		}
	}()
	wg.Wait()

	usdByn := rates["byn"]
	usdRub := rates["rub"]
	btcUSD := prices["bitcoin"]
	wldUSD := prices["worldcoin"]

	// Derived local prices are 0 when either factor is missing.
	btcBYN := btcUSD * usdByn
	wldBYN := wldUSD * usdByn

	var sb strings.Builder
	sb.WriteString("Родные мои, всем доброе утро и хорошего дня! ❤️\n\n")
	sb.WriteString("*Положняк по погоде:*\n")
	sb.WriteString(strings.Join(weatherLines, "\n"))
	sb.WriteString("\n\n*Положняк по курсам:*\n")
	fmt.Fprintf(&sb, "💵 *USD/BYN*: %.2f BYN\n", usdByn)
	fmt.Fprintf(&sb, "💵 *USD/RUB*: %.2f RUB\n", usdRub)
	fmt.Fprintf(&sb, "₿ *BTC*: $%.2f USD | %.2f BYN\n", btcUSD, btcBYN)
	fmt.Fprintf(&sb, "🌍 *WLD*: $%.2f USD | %.2f BYN", wldUSD, wldBYN)

	return sb.String()
}
