package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// KnownProviders lists the translation providers that can be configured.
var KnownProviders = []string{"deepl", "mymemory", "google", "googlecloud"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validModes := []string{"dev", "production"}
	if cfg.Gateway.Mode != "" && !slices.Contains(validModes, cfg.Gateway.Mode) {
		add("gateway.mode", "must be one of %v, got %q", validModes, cfg.Gateway.Mode)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}

	if cfg.Gateway.Production() && cfg.Gateway.SharedSecret == "" {
		add("gateway.sharedSecret", "required in production mode")
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Store validation
	validBackends := []string{"sqlite", "postgres", "memory"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		add("store.backend", "must be one of %v, got %q", validBackends, cfg.Store.Backend)
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DSN == "" {
		add("store.dsn", "required when backend is postgres")
	}
	if cfg.Store.SnapshotInterval < 0 {
		add("store.snapshotInterval", "must not be negative")
	}

	// Rate limit validation
	if cfg.RateLimit.Window < 0 {
		add("rateLimit.window", "must not be negative")
	}
	if cfg.RateLimit.WriteMax < 0 {
		add("rateLimit.writeMax", "must not be negative, got %d", cfg.RateLimit.WriteMax)
	}
	if cfg.RateLimit.UploadMax < 0 {
		add("rateLimit.uploadMax", "must not be negative, got %d", cfg.RateLimit.UploadMax)
	}
	rt := cfg.RateLimit.Realtime
	for name, limit := range map[string]ActionLimit{
		"join": rt.Join, "message": rt.Message, "recall": rt.Recall, "seen": rt.Seen,
	} {
		if limit.Customer < 0 || limit.Agent < 0 {
			add("rateLimit.realtime."+name, "limits must not be negative")
		}
	}

	// Recall validation
	if cfg.Recall.Retention < 0 {
		add("recall.retention", "must not be negative")
	}

	// Translate validation
	for i, name := range cfg.Translate.Providers {
		if !slices.Contains(KnownProviders, name) {
			add(fmt.Sprintf("translate.providers[%d]", i), "must be one of %v, got %q", KnownProviders, name)
		}
	}
	if cfg.Translate.Timeout < 0 {
		add("translate.timeout", "must not be negative")
	}

	// Geo validation
	validGeo := []string{"ipapi", "none"}
	if cfg.Geo.Provider != "" && !slices.Contains(validGeo, cfg.Geo.Provider) {
		add("geo.provider", "must be one of %v, got %q", validGeo, cfg.Geo.Provider)
	}

	// Upload validation
	if cfg.Upload.MaxBytes < 0 {
		add("upload.maxBytes", "must not be negative")
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// IRC validation (only if configured)
	if cfg.Notify.IRC != nil {
		irc := cfg.Notify.IRC
		if irc.Server == "" {
			add("notify.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("notify.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("notify.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("notify.irc.sasl", "SASL requires a password to be set")
		}
		if len(irc.Channels) == 0 {
			add("notify.irc.channels", "at least one channel is required")
		}
	}

	return issues
}
