package config

import "time"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			Timezone: "Europe/Moscow",
		},
		AI: AIConfig{
			APIBase:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			MaxTokens:   999,
			Temperature: 1.5,
		},
		History: HistoryConfig{
			DBPath:        "~/.groupbot/history.db",
			Limit:         30,
			RetentionDays: 30,
		},
		Digest: DigestConfig{
			Enabled:  true,
			CronExpr: "0 8 * * *",
			Cities: []CityEntry{
				{Name: "Минск", Query: "Minsk,BY"},
				{Name: "Гомель", Query: "Gomel,BY"},
			},
		},
		Weather: WeatherConfig{
			APIBase: "http://api.openweathermap.org/data/2.5",
		},
		Currency: CurrencyConfig{
			URL:   "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/usd.json",
			Codes: []string{"byn", "rub"},
		},
		Crypto: CryptoConfig{
			APIBase: "https://api.coingecko.com/api/v3",
			Coins:   []string{"bitcoin", "worldcoin"},
		},
		Sports: SportsConfig{
			APIBase: "https://api-football-v1.p.rapidapi.com/v3",
		},
		Backup: BackupConfig{
			Enabled:  false,
			Dir:      "~/.groupbot/backups",
			CronExpr: "0 3 * * *",
		},
		Monitor: MonitorConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9091",
		},
	}
}

// LoadLocation resolves the configured timezone, defaulting to UTC when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
