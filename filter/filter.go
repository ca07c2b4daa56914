// Package filter evaluates the two-level feed filter: fixed institute
// clauses, optional user clauses, free-text search, then category and
// author narrowing. Everything here is pure; the multiplexer never calls
// into this package.
package filter

import (
	"sort"
	"strconv"
	"strings"

	"nostr-feed/nostr"
)

// Clause is a filter clause of the form [key, value, value...]. The key is
// either a literal (authors, kinds, search) or a tag selector (#name).
// An empty clause matches everything.
type Clause []string

// Config drives one filtering pass. It is built fresh per query and never
// persisted.
type Config struct {
	InstituteFilters   []Clause // operator-fixed, always applied
	UserFilters        []Clause // optional, AND-combined
	SearchQuery        string
	SelectedCategories []string
	SelectedAuthors    []string
}

// NewConfig assembles a filter configuration.
func NewConfig(institute, user []Clause, searchQuery string, categories, authors []string) Config {
	return Config{
		InstituteFilters:   institute,
		UserFilters:        user,
		SearchQuery:        searchQuery,
		SelectedCategories: categories,
		SelectedAuthors:    authors,
	}
}

// ParseClause converts a configured clause entry into its evaluated form.
// A single "key:v1,v2" entry expands to [key, v1, v2...], with bare tag
// names gaining the # selector prefix; entries already in [key, value...]
// form pass through unchanged.
func ParseClause(entry []string) Clause {
	if len(entry) != 1 || !strings.Contains(entry[0], ":") {
		return Clause(entry)
	}

	key, rest, _ := strings.Cut(entry[0], ":")
	key = strings.TrimSpace(key)
	switch key {
	case "authors", "kinds", "search":
	default:
		if !strings.HasPrefix(key, "#") {
			key = "#" + key
		}
	}

	clause := Clause{key}
	for _, v := range strings.Split(rest, ",") {
		if v = strings.TrimSpace(v); v != "" {
			clause = append(clause, v)
		}
	}
	return clause
}

// ParseClauses converts a configured clause list, skipping empty entries.
func ParseClauses(entries [][]string) []Clause {
	clauses := make([]Clause, 0, len(entries))
	for _, entry := range entries {
		if len(entry) == 0 {
			continue
		}
		clauses = append(clauses, ParseClause(entry))
	}
	return clauses
}

// Matches reports whether a parsed event satisfies a single clause.
// Tag-selector clauses use OR semantics over their values; search clauses
// substring-match case-insensitively against kind-specific text.
func Matches(event nostr.ParsedEvent, clause Clause) bool {
	if len(clause) == 0 {
		return true
	}

	key, values := clause[0], clause[1:]

	if strings.HasPrefix(key, "#") {
		tagValues := event.Event.TagValues(key[1:])
		for _, v := range values {
			for _, tv := range tagValues {
				if tv == v {
					return true
				}
			}
		}
		return false
	}

	switch key {
	case "authors":
		for _, v := range values {
			if v == event.Event.PubKey {
				return true
			}
		}
		return false

	case "kinds":
		kind := strconv.Itoa(event.Event.Kind)
		for _, v := range values {
			if v == kind {
				return true
			}
		}
		return false

	case "search":
		if event.Metadata == nil {
			return false
		}
		term := strings.ToLower(strings.Join(values, " "))
		return strings.Contains(strings.ToLower(searchText(event)), term)
	}

	return false
}

// MatchesAll is the AND combination over clauses; no clauses matches.
func MatchesAll(event nostr.ParsedEvent, clauses []Clause) bool {
	for _, clause := range clauses {
		if !Matches(event, clause) {
			return false
		}
	}
	return true
}

// MatchesAny is the OR combination over clauses; no clauses matches.
func MatchesAny(event nostr.ParsedEvent, clauses []Clause) bool {
	if len(clauses) == 0 {
		return true
	}
	for _, clause := range clauses {
		if Matches(event, clause) {
			return true
		}
	}
	return false
}

// searchText synthesizes the text a search clause runs against, depending
// on the event type.
func searchText(event nostr.ParsedEvent) string {
	switch m := event.Metadata.(type) {
	case *nostr.AMBMetadata:
		parts := []string{
			firstNonEmpty(m.Title, m.Name),
			firstNonEmpty(m.Summary, m.Description),
		}
		parts = append(parts, m.Keywords...)
		parts = append(parts, m.Subject...)
		parts = append(parts, m.About...)
		return strings.Join(parts, " ")

	case *nostr.CalendarMetadata:
		return strings.Join([]string{
			firstNonEmpty(m.Title, m.Name),
			firstNonEmpty(m.Summary, m.Description, m.Content),
			m.Location,
		}, " ")

	case *nostr.ArticleMetadata:
		return m.Title + " " + m.Summary

	case *nostr.ProfileMetadata:
		return firstNonEmpty(m.Name, m.DisplayName) + " " + m.About

	case *nostr.NoteMetadata:
		return strings.Join([]string{
			firstNonEmpty(m.Title, m.Name),
			m.Summary,
			m.Description,
			event.Event.Content,
		}, " ")
	}
	return event.Event.Content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func categoryMatch(event nostr.ParsedEvent, categories []string) bool {
	tags := event.Event.TagValues("t")
	for _, cat := range categories {
		for _, tag := range tags {
			if tag == cat {
				return true
			}
		}
	}
	return false
}

func authorMatch(event nostr.ParsedEvent, authors []string) bool {
	for _, a := range authors {
		if a == event.Event.PubKey {
			return true
		}
	}
	return false
}

func filterEvents(events []nostr.ParsedEvent, keep func(nostr.ParsedEvent) bool) []nostr.ParsedEvent {
	filtered := make([]nostr.ParsedEvent, 0, len(events))
	for _, ev := range events {
		if keep(ev) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// Apply runs the fixed five-stage pipeline: institute clauses, user
// clauses, search, categories, authors. Each stage narrows the previous
// stage's survivors.
func Apply(events []nostr.ParsedEvent, config Config) []nostr.ParsedEvent {
	filtered := filterEvents(events, func(ev nostr.ParsedEvent) bool {
		return MatchesAll(ev, config.InstituteFilters)
	})

	if len(config.UserFilters) > 0 {
		filtered = filterEvents(filtered, func(ev nostr.ParsedEvent) bool {
			return MatchesAll(ev, config.UserFilters)
		})
	}

	if query := strings.TrimSpace(config.SearchQuery); query != "" {
		clause := Clause{"search", query}
		filtered = filterEvents(filtered, func(ev nostr.ParsedEvent) bool {
			return Matches(ev, clause)
		})
	}

	if len(config.SelectedCategories) > 0 {
		filtered = filterEvents(filtered, func(ev nostr.ParsedEvent) bool {
			return categoryMatch(ev, config.SelectedCategories)
		})
	}

	if len(config.SelectedAuthors) > 0 {
		filtered = filterEvents(filtered, func(ev nostr.ParsedEvent) bool {
			return authorMatch(ev, config.SelectedAuthors)
		})
	}

	return filtered
}

// Stats reports the surviving count after each pipeline stage.
type Stats struct {
	Total             int
	Filtered          int
	InstituteFiltered int
	UserFiltered      int
	SearchFiltered    int
	CategoryFiltered  int
	AuthorFiltered    int
}

// CalculateStats recomputes the pipeline stage by stage for diagnostics.
// It is stateless: each call runs the stages independently.
func CalculateStats(events []nostr.ParsedEvent, config Config) Stats {
	stats := Stats{Total: len(events)}

	after := filterEvents(events, func(ev nostr.ParsedEvent) bool {
		return MatchesAll(ev, config.InstituteFilters)
	})
	stats.InstituteFiltered = len(after)

	if len(config.UserFilters) > 0 {
		after = filterEvents(after, func(ev nostr.ParsedEvent) bool {
			return MatchesAll(ev, config.UserFilters)
		})
	}
	stats.UserFiltered = len(after)

	if query := strings.TrimSpace(config.SearchQuery); query != "" {
		clause := Clause{"search", query}
		after = filterEvents(after, func(ev nostr.ParsedEvent) bool {
			return Matches(ev, clause)
		})
	}
	stats.SearchFiltered = len(after)

	if len(config.SelectedCategories) > 0 {
		after = filterEvents(after, func(ev nostr.ParsedEvent) bool {
			return categoryMatch(ev, config.SelectedCategories)
		})
	}
	stats.CategoryFiltered = len(after)

	if len(config.SelectedAuthors) > 0 {
		after = filterEvents(after, func(ev nostr.ParsedEvent) bool {
			return authorMatch(ev, config.SelectedAuthors)
		})
	}
	stats.AuthorFiltered = len(after)
	stats.Filtered = len(after)

	return stats
}

// FromWidgetConfig builds filter clauses from a widget's configured
// authors and tag clauses.
func FromWidgetConfig(authors []string, tagClauses []Clause) []Clause {
	var clauses []Clause
	if len(authors) > 0 {
		clauses = append(clauses, append(Clause{"authors"}, authors...))
	}
	clauses = append(clauses, tagClauses...)
	return clauses
}

// ExtractCategories returns the sorted distinct t-tag values across events.
func ExtractCategories(events []nostr.ParsedEvent) []string {
	seen := make(map[string]bool)
	var categories []string
	for _, ev := range events {
		for _, tag := range ev.Event.TagValues("t") {
			if !seen[tag] {
				seen[tag] = true
				categories = append(categories, tag)
			}
		}
	}
	sort.Strings(categories)
	return categories
}

// ExtractAuthors returns the distinct pubkeys across events in first-seen
// order.
func ExtractAuthors(events []nostr.ParsedEvent) []string {
	seen := make(map[string]bool)
	var authors []string
	for _, ev := range events {
		if !seen[ev.Event.PubKey] {
			seen[ev.Event.PubKey] = true
			authors = append(authors, ev.Event.PubKey)
		}
	}
	return authors
}
