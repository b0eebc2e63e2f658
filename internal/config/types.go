package config

import "time"

// Config is the root configuration for supportim.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	RateLimit RateLimitConfig `yaml:"rateLimit,omitempty"`
	Presence  PresenceConfig  `yaml:"presence,omitempty"`
	Recall    RecallConfig    `yaml:"recall,omitempty"`
	Translate TranslateConfig `yaml:"translate,omitempty"`
	Geo       GeoConfig       `yaml:"geo,omitempty"`
	Upload    UploadConfig    `yaml:"upload,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Mode           string     `yaml:"mode,omitempty"` // "dev" | "production"
	Bind           string     `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	SharedSecret   string     `yaml:"sharedSecret,omitempty"`
	AgentAllowAll  bool       `yaml:"agentAllowAll,omitempty"` // agents may join any thread
	TrustProxy     bool       `yaml:"trustProxy,omitempty"`    // take the client IP from X-Forwarded-For
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
	TLS            GatewayTLS `yaml:"tls,omitempty"`
}

// Production reports whether the gateway runs in production mode.
func (g GatewayConfig) Production() bool {
	return g.Mode == "production"
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StoreConfig selects the message store backend.
type StoreConfig struct {
	Backend          string        `yaml:"backend,omitempty"` // "sqlite" | "postgres" | "memory"
	Path             string        `yaml:"path,omitempty"`    // sqlite database file
	DSN              string        `yaml:"dsn,omitempty"`     // postgres connection string
	SnapshotPath     string        `yaml:"snapshotPath,omitempty"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval,omitempty"`
}

// RateLimitConfig sets quotas for both the HTTP and realtime channels.
type RateLimitConfig struct {
	Window       time.Duration  `yaml:"window,omitempty"`
	WriteMax     int            `yaml:"writeMax,omitempty"`
	UploadMax    int            `yaml:"uploadMax,omitempty"`
	RedisURL     string         `yaml:"redisUrl,omitempty"`
	RedisPrefix  string         `yaml:"redisPrefix,omitempty"`
	RedisTimeout time.Duration  `yaml:"redisTimeout,omitempty"`
	Realtime     RealtimeLimits `yaml:"realtime,omitempty"`
}

// RealtimeLimits sets per-action quotas for WebSocket events.
type RealtimeLimits struct {
	Window  time.Duration `yaml:"window,omitempty"`
	Join    ActionLimit   `yaml:"join,omitempty"`
	Message ActionLimit   `yaml:"message,omitempty"`
	Recall  ActionLimit   `yaml:"recall,omitempty"`
	Seen    ActionLimit   `yaml:"seen,omitempty"`
}

// ActionLimit is the per-window maximum for each role.
type ActionLimit struct {
	Customer int `yaml:"customer,omitempty"`
	Agent    int `yaml:"agent,omitempty"`
}

// PresenceConfig controls presence reconciliation.
type PresenceConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcileInterval,omitempty"`
}

// RecallConfig controls how long customer-recalled content is retained.
// A zero Retention keeps recalled content indefinitely.
type RecallConfig struct {
	Retention     time.Duration `yaml:"retention,omitempty"`
	PurgeInterval time.Duration `yaml:"purgeInterval,omitempty"`
}

// TranslateConfig defines the translation provider chain.
type TranslateConfig struct {
	Providers   []string          `yaml:"providers,omitempty"` // tried in order
	Timeout     time.Duration     `yaml:"timeout,omitempty"`   // per provider attempt
	Source      string            `yaml:"source,omitempty"`
	Target      string            `yaml:"target,omitempty"`
	DeepL       DeepLConfig       `yaml:"deepl,omitempty"`
	GoogleCloud GoogleCloudConfig `yaml:"googleCloud,omitempty"`
	MyMemory    MyMemoryConfig    `yaml:"mymemory,omitempty"`
}

// DeepLConfig configures the DeepL provider.
type DeepLConfig struct {
	AuthKey string `yaml:"authKey,omitempty"`
	Target  string `yaml:"target,omitempty"`
}

// GoogleCloudConfig configures the Cloud Translation provider.
type GoogleCloudConfig struct {
	APIKey      string `yaml:"apiKey,omitempty"`
	AccessToken string `yaml:"accessToken,omitempty"`
}

// MyMemoryConfig configures the MyMemory provider.
type MyMemoryConfig struct {
	Email string `yaml:"email,omitempty"` // raises the anonymous daily quota
}

// GeoConfig configures IP to country resolution.
type GeoConfig struct {
	Provider string        `yaml:"provider,omitempty"` // "ipapi" | "none"
	Endpoint string        `yaml:"endpoint,omitempty"` // %s is replaced by the IP
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// UploadConfig configures image uploads.
type UploadConfig struct {
	Dir           string        `yaml:"dir,omitempty"`
	MaxBytes      int64         `yaml:"maxBytes,omitempty"`
	ScanURL       string        `yaml:"scanUrl,omitempty"`
	ScanTimeout   time.Duration `yaml:"scanTimeout,omitempty"`
	RetentionDays int           `yaml:"retentionDays,omitempty"`
}

// NotifyConfig configures agent notification relays.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines the IRC relay settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
