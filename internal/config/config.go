package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultProviders is the translation chain used when none is configured.
var DefaultProviders = []string{"deepl", "mymemory", "google"}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 8787,
			Mode: "dev",
			Bind: "loopback",
		},
		Store: StoreConfig{
			Backend:          "sqlite",
			SnapshotInterval: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:       time.Minute,
			WriteMax:     20,
			UploadMax:    5,
			RedisPrefix:  "supportim:",
			RedisTimeout: 250 * time.Millisecond,
			Realtime: RealtimeLimits{
				Window:  time.Minute,
				Join:    ActionLimit{Customer: 5, Agent: 30},
				Message: ActionLimit{Customer: 30, Agent: 120},
				Recall:  ActionLimit{Customer: 10, Agent: 60},
				Seen:    ActionLimit{Customer: 60, Agent: 120},
			},
		},
		Presence: PresenceConfig{
			ReconcileInterval: 30 * time.Second,
		},
		Recall: RecallConfig{
			PurgeInterval: time.Hour,
		},
		Translate: TranslateConfig{
			Providers: append([]string(nil), DefaultProviders...),
			Timeout:   6 * time.Second,
			Source:    "en",
			Target:    "zh-CN",
			DeepL:     DeepLConfig{Target: "ZH"},
		},
		Geo: GeoConfig{
			Provider: "ipapi",
			Endpoint: "https://ipapi.co/%s/country_name/",
			Timeout:  3 * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes:      5 << 20,
			ScanTimeout:   8 * time.Second,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
