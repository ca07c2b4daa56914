// Package config loads the feed configuration from a JSON file.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
)

// FeedConfig represents the JSON configuration for a feed: which relays
// to watch, what to subscribe to and the institute-level filter clauses
// applied before any user filtering.
type FeedConfig struct {
	Relays  []string `json:"relays"`
	Kinds   []int    `json:"kinds"`
	Authors []string `json:"authors"`
	Tags    []string `json:"tags"`

	// InstituteFilters are AND-combined clauses, each entry either one
	// "key:v1,v2" string or the explicit ["key", "v1", "v2"] form; bare
	// keys other than authors/kinds/search select tags. Entries are
	// expanded by filter.ParseClauses before evaluation.
	InstituteFilters [][]string `json:"instituteFilters"`

	// RedisURL enables the Redis-backed dedup set when non-empty.
	RedisURL string `json:"redisUrl"`
}

var (
	feedConfig     *FeedConfig
	feedConfigMu   sync.RWMutex
	feedConfigOnce sync.Once
)

// GetFeedConfig returns the current feed configuration (thread-safe)
func GetFeedConfig() *FeedConfig {
	feedConfigOnce.Do(func() {
		feedConfigMu.Lock()
		defer feedConfigMu.Unlock()
		if feedConfig == nil {
			feedConfig = loadFeedConfigFromFile()
		}
	})

	feedConfigMu.RLock()
	defer feedConfigMu.RUnlock()
	return feedConfig
}

// ReloadFeedConfig reloads the configuration from file
func ReloadFeedConfig() error {
	newConfig := loadFeedConfigFromFile()
	feedConfigMu.Lock()
	defer feedConfigMu.Unlock()
	feedConfig = newConfig
	slog.Info("feed configuration reloaded")
	return nil
}

func loadFeedConfigFromFile() *FeedConfig {
	configPath := os.Getenv("FEED_CONFIG")
	if configPath == "" {
		configPath = "config/feed.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", configPath)
		} else {
			slog.Warn("could not read config, using defaults", "path", configPath, "error", err)
		}
		return getDefaultFeedConfig()
	}

	var config FeedConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("invalid JSON in config, using defaults", "path", configPath, "error", err)
		return getDefaultFeedConfig()
	}

	slog.Info("loaded feed configuration",
		"path", configPath,
		"relays", len(config.Relays),
		"kinds", len(config.Kinds),
		"authors", len(config.Authors),
		"institute_filters", len(config.InstituteFilters))
	return &config
}

// getDefaultFeedConfig returns the embedded default configuration
func getDefaultFeedConfig() *FeedConfig {
	return &FeedConfig{
		Relays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://nos.lol",
		},
		Kinds: []int{0, 1, 30023, 30142, 31922, 31923},
	}
}

// GetRelays returns the configured relay list, falling back to the
// defaults when the configuration left it empty.
func (c *FeedConfig) GetRelays() []string {
	if len(c.Relays) > 0 {
		return c.Relays
	}
	return getDefaultFeedConfig().Relays
}

// GetKinds returns the configured kind list, falling back to the
// defaults when the configuration left it empty.
func (c *FeedConfig) GetKinds() []int {
	if len(c.Kinds) > 0 {
		return c.Kinds
	}
	return getDefaultFeedConfig().Kinds
}
