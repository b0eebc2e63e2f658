package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

const defaultBaseDir = ".supportim"

// Paths holds resolved filesystem paths for supportim data.
type Paths struct {
	Base     string // ~/.supportim
	Config   string // ~/.supportim/config.yaml
	Data     string // ~/.supportim/data
	Database string // ~/.supportim/data/supportim.db
	Snapshot string // ~/.supportim/data/mem.json
	Uploads  string // ~/.supportim/uploads
	Logs     string // ~/.supportim/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If SUPPORTIM_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("SUPPORTIM_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	data := filepath.Join(base, "data")
	return Paths{
		Base:     base,
		Config:   filepath.Join(base, "config.yaml"),
		Data:     data,
		Database: filepath.Join(data, "supportim.db"),
		Snapshot: filepath.Join(data, "mem.json"),
		Uploads:  filepath.Join(base, "uploads"),
		Logs:     filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Uploads, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// Apply fills path-valued config fields that were left empty.
func (p Paths) Apply(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = p.Database
	}
	if cfg.Store.SnapshotPath == "" {
		cfg.Store.SnapshotPath = p.Snapshot
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = p.Uploads
	}
}

// ParseConfigPath splits a dotted key such as "rateLimit.realtime.window"
// and checks every segment against the yaml names of Config.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	t := reflect.TypeOf(Config{})
	for i, seg := range parts {
		if seg == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if t.Kind() != reflect.Struct {
			return nil, &ConfigError{Message: fmt.Sprintf("%s is a value, not a section", strings.Join(parts[:i], "."))}
		}
		field, ok := yamlField(t, seg)
		if !ok {
			return nil, &ConfigError{Message: fmt.Sprintf("unknown config key %q", strings.Join(parts[:i+1], "."))}
		}
		t = field.Type
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	return parts, nil
}

func yamlField(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// section walks root along path and returns the map holding the last
// segment. With create set, missing or scalar intermediates become maps.
func section(root map[string]any, path []string, create bool) (map[string]any, bool) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	return current, true
}

// GetValueAtPath returns the value stored at path in a raw config map.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return root, true
	}
	m, ok := section(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := m[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value at path, creating sections as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	m, _ := section(root, path, true)
	m[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the value at path and prunes sections left
// empty. It reports whether anything was removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	m, ok := section(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	if len(m) == 0 && len(path) > 1 {
		UnsetValueAtPath(root, path[:len(path)-1])
	}
	return true
}
