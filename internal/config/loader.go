package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.SharedSecret = expandEnvVars(cfg.Gateway.SharedSecret)
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	cfg.RateLimit.RedisURL = expandEnvVars(cfg.RateLimit.RedisURL)
	cfg.Translate.DeepL.AuthKey = expandEnvVars(cfg.Translate.DeepL.AuthKey)
	cfg.Translate.GoogleCloud.APIKey = expandEnvVars(cfg.Translate.GoogleCloud.APIKey)
	cfg.Translate.GoogleCloud.AccessToken = expandEnvVars(cfg.Translate.GoogleCloud.AccessToken)
	cfg.Upload.ScanURL = expandEnvVars(cfg.Upload.ScanURL)
	if cfg.Notify.IRC != nil {
		cfg.Notify.IRC.Password = expandEnvVars(cfg.Notify.IRC.Password)
	}
}

// loadDotEnv loads .env files from the config directory and the working
// directory. Variables already present in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()
	loadDotEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Mode == "" {
		cfg.Gateway.Mode = d.Gateway.Mode
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = d.Store.Backend
	}
	if cfg.Store.SnapshotInterval == 0 {
		cfg.Store.SnapshotInterval = d.Store.SnapshotInterval
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = d.RateLimit.Window
	}
	if cfg.RateLimit.WriteMax == 0 {
		cfg.RateLimit.WriteMax = d.RateLimit.WriteMax
	}
	if cfg.RateLimit.UploadMax == 0 {
		cfg.RateLimit.UploadMax = d.RateLimit.UploadMax
	}
	if cfg.RateLimit.RedisTimeout == 0 {
		cfg.RateLimit.RedisTimeout = d.RateLimit.RedisTimeout
	}
	applyRealtimeDefaults(&cfg.RateLimit.Realtime, d.RateLimit.Realtime)
	if cfg.Presence.ReconcileInterval == 0 {
		cfg.Presence.ReconcileInterval = d.Presence.ReconcileInterval
	}
	if cfg.Recall.PurgeInterval == 0 {
		cfg.Recall.PurgeInterval = d.Recall.PurgeInterval
	}
	if len(cfg.Translate.Providers) == 0 {
		cfg.Translate.Providers = d.Translate.Providers
	}
	if cfg.Translate.Timeout == 0 {
		cfg.Translate.Timeout = d.Translate.Timeout
	}
	if cfg.Translate.Source == "" {
		cfg.Translate.Source = d.Translate.Source
	}
	if cfg.Translate.Target == "" {
		cfg.Translate.Target = d.Translate.Target
	}
	if cfg.Translate.DeepL.Target == "" {
		cfg.Translate.DeepL.Target = d.Translate.DeepL.Target
	}
	if cfg.Geo.Provider == "" {
		cfg.Geo.Provider = d.Geo.Provider
	}
	if cfg.Geo.Endpoint == "" {
		cfg.Geo.Endpoint = d.Geo.Endpoint
	}
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = d.Geo.Timeout
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = d.Upload.MaxBytes
	}
	if cfg.Upload.ScanTimeout == 0 {
		cfg.Upload.ScanTimeout = d.Upload.ScanTimeout
	}
	if cfg.Upload.RetentionDays == 0 {
		cfg.Upload.RetentionDays = d.Upload.RetentionDays
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
}

func applyRealtimeDefaults(rt *RealtimeLimits, d RealtimeLimits) {
	if rt.Window == 0 {
		rt.Window = d.Window
	}
	for _, pair := range []struct{ got, def *ActionLimit }{
		{&rt.Join, &d.Join},
		{&rt.Message, &d.Message},
		{&rt.Recall, &d.Recall},
		{&rt.Seen, &d.Seen},
	} {
		if pair.got.Customer == 0 {
			pair.got.Customer = pair.def.Customer
		}
		if pair.got.Agent == 0 {
			pair.got.Agent = pair.def.Agent
		}
	}
}

// applyEnvOverrides reads SUPPORTIM_* and the legacy IM_* variables and
// overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUPPORTIM_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("SUPPORTIM_GATEWAY_MODE"); v != "" {
		cfg.Gateway.Mode = v
	}
	if v := os.Getenv("SUPPORTIM_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := firstEnv("SUPPORTIM_SHARED_SECRET", "IM_TOKEN"); v != "" {
		cfg.Gateway.SharedSecret = v
	}
	if v := firstEnv("SUPPORTIM_AGENT_ALLOW_ALL", "IM_AGENT_ALLOW_ALL"); v != "" {
		cfg.Gateway.AgentAllowAll = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SUPPORTIM_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SUPPORTIM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := firstEnv("SUPPORTIM_STORE_DSN", "DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
	}
	if v := firstEnv("SUPPORTIM_REDIS_URL", "REDIS_URL"); v != "" {
		cfg.RateLimit.RedisURL = v
	}
	if v := os.Getenv("DEEPL_AUTH_KEY"); v != "" {
		cfg.Translate.DeepL.AuthKey = v
	}
	if v := os.Getenv("GOOGLE_TRANSLATE_API_KEY"); v != "" {
		cfg.Translate.GoogleCloud.APIKey = v
	}
	if v := os.Getenv("SUPPORTIM_TRANSLATE_PROVIDERS"); v != "" {
		cfg.Translate.Providers = splitList(v)
	}
	if v := firstEnv("SUPPORTIM_UPLOAD_RETENTION_DAYS", "IM_UPLOAD_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Upload.RetentionDays = days
		}
	}
	if v := os.Getenv("SUPPORTIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
