package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
)

// Settings keys
const (
	keyServerPort  = "server.port"
	keyOpenBrowser = "server.open_browser"
	keySkipHidden  = "scan.skip_hidden"
	keyWatchIgnore = "watch.ignore"
	keyLogLevel    = "log.level"
)

const defaultPort = 6419

// configStore is a TOML key/value file. Nested tables are flattened to
// dot-notation keys; every Set is written through to disk.
type configStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// newConfigStore opens configDir/config.toml, defaulting to ~/.markview.
func newConfigStore(configDir string) (*configStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".markview")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &configStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]any),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *configStore) get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

// GetString returns the string stored at key, or ""
func (s *configStore) GetString(key string) string {
	val, _ := s.get(key)
	str, _ := val.(string)
	return str
}

func (s *configStore) getInt(key string, fallback int) int {
	val, ok := s.get(key)
	if !ok {
		return fallback
	}
	// TOML integers decode as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func (s *configStore) getBool(key string, fallback bool) bool {
	val, ok := s.get(key)
	if !ok {
		return fallback
	}
	b, ok := val.(bool)
	if !ok {
		return fallback
	}
	return b
}

func (s *configStore) getStringSlice(key string) []string {
	val, ok := s.get(key)
	if !ok {
		return nil
	}
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Set stores value under key and persists immediately. A key cannot hold a
// value and a table at the same time.
func (s *configStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for existing := range s.data {
		if strings.HasPrefix(existing, key+".") || strings.HasPrefix(key, existing+".") {
			return fmt.Errorf("config key %q conflicts with %q", key, existing)
		}
	}
	s.data[key] = value
	return s.save()
}

// save writes the file. Caller holds s.mu.
func (s *configStore) save() error {
	data, err := toml.Marshal(unflattenMap(s.data))
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0600)
}

func (s *configStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = make(map[string]any)
			return nil
		}
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return err
	}
	s.data = flattenMap(loaded, "")
	return nil
}

func (s *configStore) path() string {
	return s.filePath
}

// flattenMap turns {"a": {"b": 1}} into {"a.b": 1}
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)
	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}
	return result
}

// unflattenMap is the inverse of flattenMap so the file keeps TOML tables.
// Keys that are not valid bare TOML keys (such as "markview-theme") stay at
// the top level.
func unflattenMap(m map[string]any) map[string]any {
	result := make(map[string]any)
	for key, value := range m {
		parts := strings.Split(key, ".")
		node := result
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				if prev, exists := node[part]; exists {
					log.Printf("Warning: config key %q replaces value %v with a table", key, prev)
				}
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, isTable := node[leaf].(map[string]any); isTable {
			log.Printf("Warning: config key %q would replace a table, skipping", key)
			continue
		}
		node[leaf] = value
	}
	return result
}

// Config is the resolved runtime configuration
type Config struct {
	Port        int
	OpenBrowser bool
	SkipHidden  bool
	WatchIgnore []string
	LogLevel    string
}

// loadConfig reads settings from the store, applying defaults
func loadConfig(store *configStore) Config {
	cfg := Config{
		Port:        defaultPort,
		OpenBrowser: true,
		LogLevel:    "info",
	}
	if store == nil {
		return cfg
	}
	cfg.Port = store.getInt(keyServerPort, cfg.Port)
	cfg.OpenBrowser = store.getBool(keyOpenBrowser, cfg.OpenBrowser)
	cfg.SkipHidden = store.getBool(keySkipHidden, cfg.SkipHidden)
	cfg.WatchIgnore = store.getStringSlice(keyWatchIgnore)
	if lvl := store.GetString(keyLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	log.Debugf("Loaded configuration from %s", store.path())
	return cfg
}
