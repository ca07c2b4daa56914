// Feed Watcher
// Connects to the configured relays, subscribes to the configured kinds
// and prints every event that survives the filter pipeline as one line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"nostr-feed/client"
	"nostr-feed/filter"
	"nostr-feed/internal/config"
	"nostr-feed/internal/logging"
	"nostr-feed/internal/seen"
	"nostr-feed/nostr"
)

func main() {
	configPath := flag.String("config", "", "path to feed config JSON (overrides FEED_CONFIG)")
	search := flag.String("search", "", "case-insensitive search over extracted metadata")
	categories := flag.String("categories", "", "comma-separated category list (t-tag OR match)")
	authors := flag.String("authors", "", "comma-separated author pubkey list")
	debug := flag.Bool("debug", false, "log outgoing frames")
	statsEvery := flag.Duration("stats", 0, "print client stats at this interval (0 disables)")
	flag.Parse()

	logging.Init()

	if *configPath != "" {
		os.Setenv("FEED_CONFIG", *configPath)
	}
	cfg := config.GetFeedConfig()

	backend, err := buildSeenBackend(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dedup backend: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	var filterMu sync.RWMutex
	filterCfg := buildFilterConfig(cfg, *search, *categories, *authors)

	c := client.New(client.Config{
		Relays: cfg.GetRelays(),
		Debug:  *debug,
		Seen:   backend,
		OnEvent: func(ev nostr.Event) {
			filterMu.RLock()
			fc := filterCfg
			filterMu.RUnlock()

			parsed := nostr.ParseEvent(ev)
			if len(filter.Apply([]nostr.ParsedEvent{parsed}, fc)) == 0 {
				return
			}
			printEvent(parsed)
		},
		OnNotice: func(notice string) {
			slog.Info("notice", "text", notice)
		},
		OnError: func(err error) {
			slog.Warn("client error", "error", err)
		},
		OnConnect: func(relayURL string) {
			slog.Info("connected", "relay", relayURL)
		},
		OnDisconnect: func(relayURL string) {
			slog.Info("disconnected", "relay", relayURL)
		},
	})
	defer c.Close()

	f := nostr.Filter{Kinds: cfg.GetKinds()}
	if len(cfg.Authors) > 0 {
		f.Authors = cfg.Authors
	}
	if len(cfg.Tags) > 0 {
		f.TTags = cfg.Tags
	}
	c.Subscribe("feedwatch", []nostr.Filter{f})
	c.Connect(context.Background())

	if *statsEvery > 0 {
		go func() {
			ticker := time.NewTicker(*statsEvery)
			defer ticker.Stop()
			for range ticker.C {
				stats := c.GetStats()
				slog.Info("client stats",
					"dispatched", stats.EventsDispatched,
					"duplicates", stats.DuplicatesDropped,
					"dropped_frames", stats.FramesDropped,
					"relays", c.ConnectedRelayCount())
			}
		}()
	}

	// SIGHUP reloads the config file and rebuilds the filter pipeline;
	// relay connections and subscriptions are left alone.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s != syscall.SIGHUP {
			break
		}
		if err := config.ReloadFeedConfig(); err != nil {
			slog.Warn("config reload failed", "error", err)
			continue
		}
		cfg = config.GetFeedConfig()
		filterMu.Lock()
		filterCfg = buildFilterConfig(cfg, *search, *categories, *authors)
		filterMu.Unlock()
		slog.Info("filters rebuilt from reloaded config")
	}
	slog.Info("shutting down")
}

// buildFilterConfig assembles the filter pipeline from the feed config and
// the command-line narrowing flags.
func buildFilterConfig(cfg *config.FeedConfig, search, categories, authors string) filter.Config {
	return filter.NewConfig(
		filter.ParseClauses(cfg.InstituteFilters),
		nil,
		search,
		splitList(categories),
		splitList(authors),
	)
}

// buildSeenBackend picks Redis when the config names a URL, otherwise the
// in-memory set.
func buildSeenBackend(cfg *config.FeedConfig) (seen.Backend, error) {
	if cfg.RedisURL == "" {
		return seen.NewMemory(), nil
	}
	return seen.NewRedis(cfg.RedisURL, "feedwatch:seen:", 24*time.Hour)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// printEvent writes one human-readable line per accepted event.
func printEvent(parsed nostr.ParsedEvent) {
	title, summary := eventHeadline(parsed)
	uri := parsed.NostrURI
	if uri == "" {
		uri = parsed.Event.ID
	}
	fmt.Printf("[%s] %s  %s  %s\n", parsed.Type, uri, title, summary)
}

// eventHeadline extracts a short title and summary per event type; article
// summaries fall back to the plain text of the markdown body.
func eventHeadline(parsed nostr.ParsedEvent) (string, string) {
	switch meta := parsed.Metadata.(type) {
	case *nostr.AMBMetadata:
		return firstOf(meta.Title, meta.Name), clip(firstOf(meta.Summary, meta.Description), 120)
	case *nostr.CalendarMetadata:
		return meta.Title, clip(meta.Summary, 120)
	case *nostr.ArticleMetadata:
		summary := meta.Summary
		if summary == "" {
			summary = nostr.MarkdownPlainText(parsed.Event.Content)
		}
		return meta.Title, clip(summary, 120)
	case *nostr.ProfileMetadata:
		return firstOf(meta.DisplayName, meta.Name), clip(meta.About, 120)
	case *nostr.NoteMetadata:
		return meta.Title, clip(meta.Summary, 120)
	default:
		return "", clip(parsed.Event.Content, 120)
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func clip(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
