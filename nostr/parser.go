package nostr

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
)

// EventType classifies an event for rendering and filtering. It is a total
// function of the kind; unknown kinds are treated as notes.
type EventType string

const (
	TypeAMB      EventType = "amb"
	TypeCalendar EventType = "calendar"
	TypeProfile  EventType = "profile"
	TypeArticle  EventType = "article"
	TypeNote     EventType = "note"
)

// GetEventType maps a kind to its event type.
func GetEventType(kind int) EventType {
	switch kind {
	case KindAMB:
		return TypeAMB
	case KindCalendarDate, KindCalendarTime:
		return TypeCalendar
	case KindProfile:
		return TypeProfile
	case KindArticle, KindArticleLegacy:
		return TypeArticle
	default:
		return TypeNote
	}
}

// Metadata is the kind-specific payload of a parsed event. Callers type
// switch on the concrete type.
type Metadata interface {
	Type() EventType
}

// AMBMetadata holds the educational metadata of a kind-30142 event
// (AMB profile carried in tags).
type AMBMetadata struct {
	D                    string
	Title                string
	Name                 string
	Summary              string
	Description          string
	Image                string
	URL                  string
	License              string
	CopyrightHolder      string
	Creator              string
	Format               string
	EncodingFormat       string
	FileFormat           string
	Size                 string
	EducationalFramework string
	Version              string
	IsBasedOn            string
	LearningResourceType string

	EducationalLevel  string
	EducationalUse    string
	InteractivityType string
	TypicalAgeRange   string
	TimeRequired      string

	Teaches     []string
	Assesses    []string
	Requires    []string
	Audience    []string
	InLanguage  []string
	Keywords    []string
	Subject     []string
	About       []string
	Contributor []string

	CreatorPubkeys     []string
	ContributorPubkeys []string

	// Extra collects flattened scalar fields with no named equivalent.
	Extra map[string]string
}

func (*AMBMetadata) Type() EventType { return TypeAMB }

// Participant is a p-tag reference on a calendar event.
type Participant struct {
	Pubkey string
	Relay  string
	Role   string
}

// CalendarMetadata holds NIP-52 calendar event fields (kinds 31922/31923).
// Start/End keep the raw tag value; StartUnix/EndUnix are populated for
// time-based events whose value is all digits.
type CalendarMetadata struct {
	D           string
	Title       string
	Name        string // deprecated alias of Title
	Summary     string
	Description string
	Image       string
	Location    string
	Geohash     string
	Start       string
	End         string
	StartUnix   int64
	EndUnix     int64
	StartT      string // legacy start_t
	EndT        string // legacy end_t
	StartTZID   string
	EndTZID     string
	Status      string
	RSVP        bool
	Content     string

	Participants []Participant
	Categories   []string
}

func (*CalendarMetadata) Type() EventType { return TypeCalendar }

// ProfileMetadata is the JSON content of a kind-0 event.
type ProfileMetadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Website     string `json:"website,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
}

func (*ProfileMetadata) Type() EventType { return TypeProfile }

// ArticleMetadata holds long-form content fields (kinds 30023/30029).
type ArticleMetadata struct {
	D           string
	Title       string
	Name        string
	Summary     string
	Description string
	Image       string
	URL         string
	PublishedAt int64
}

func (*ArticleMetadata) Type() EventType { return TypeArticle }

// NoteMetadata carries title/summary derived from a plain note's content.
type NoteMetadata struct {
	Title       string
	Name        string
	Summary     string
	Description string
}

func (*NoteMetadata) Type() EventType { return TypeNote }

// ParsedEvent pairs a raw event with its classification and extracted
// metadata. Metadata is nil when no parser matched the kind.
type ParsedEvent struct {
	Event    Event
	Type     EventType
	Metadata Metadata
	NostrURI string           // canonical nostr: URI, empty when not derivable
	Author   *ProfileMetadata // filled by EnrichWithProfiles
}

// ambMultiValued lists the flattened AMB keys that accumulate into slices.
var ambMultiValued = map[string]bool{
	"teaches":     true,
	"assesses":    true,
	"requires":    true,
	"audience":    true,
	"inLanguage":  true,
	"keywords":    true,
	"subject":     true,
	"about":       true,
	"contributor": true,
}

// ambScalarTags is the allow-list of unprefixed tag keys mapped directly to
// scalar fields.
var ambScalarTags = map[string]bool{
	"d": true, "title": true, "name": true, "summary": true,
	"description": true, "image": true, "url": true, "license": true,
	"copyrightHolder": true, "creator": true, "format": true,
	"encodingFormat": true, "fileFormat": true, "size": true,
	"educationalFramework": true, "version": true, "isBasedOn": true,
	"learningResourceType": true,
}

func (m *AMBMetadata) appendMulti(key, value string) {
	switch key {
	case "teaches":
		m.Teaches = append(m.Teaches, value)
	case "assesses":
		m.Assesses = append(m.Assesses, value)
	case "requires":
		m.Requires = append(m.Requires, value)
	case "audience":
		m.Audience = append(m.Audience, value)
	case "inLanguage":
		m.InLanguage = append(m.InLanguage, value)
	case "keywords":
		m.Keywords = append(m.Keywords, value)
	case "subject":
		m.Subject = append(m.Subject, value)
	case "about":
		m.About = append(m.About, value)
	case "contributor":
		m.Contributor = append(m.Contributor, value)
	}
}

func (m *AMBMetadata) setScalar(key, value string) {
	switch key {
	case "d":
		m.D = value
	case "title":
		m.Title = value
	case "name":
		m.Name = value
	case "summary":
		m.Summary = value
	case "description":
		m.Description = value
	case "image":
		m.Image = value
	case "url":
		m.URL = value
	case "license":
		m.License = value
	case "copyrightHolder":
		m.CopyrightHolder = value
	case "creator":
		m.Creator = value
	case "format":
		m.Format = value
	case "encodingFormat":
		m.EncodingFormat = value
	case "fileFormat":
		m.FileFormat = value
	case "size":
		m.Size = value
	case "educationalFramework":
		m.EducationalFramework = value
	case "version":
		m.Version = value
	case "isBasedOn":
		m.IsBasedOn = value
	case "learningResourceType":
		m.LearningResourceType = value
	case "educationalLevel":
		m.EducationalLevel = value
	case "educationalUse":
		m.EducationalUse = value
	case "interactivityType":
		m.InteractivityType = value
	case "typicalAgeRange":
		m.TypicalAgeRange = value
	case "timeRequired":
		m.TimeRequired = value
	default:
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[key] = value
	}
}

// ParseAMBEvent extracts AMB educational metadata from a kind-30142 event.
// Tag keys prefixed with "#" are flattened JSON fields: multi-valued keys
// accumulate in encounter order, everything else overwrites a scalar.
func ParseAMBEvent(ev Event) *AMBMetadata {
	m := &AMBMetadata{}

	for _, tag := range ev.Tags {
		if len(tag) == 0 {
			continue
		}
		key := tag[0]
		value := tagElem(tag, 1)

		switch {
		case strings.HasPrefix(key, "#"):
			name := key[1:]
			if ambMultiValued[name] {
				m.appendMulti(name, value)
			} else {
				m.setScalar(name, value)
			}
		case ambScalarTags[key]:
			m.setScalar(key, value)
		case key == "p":
			switch tagElem(tag, 3) {
			case "creator":
				m.CreatorPubkeys = append(m.CreatorPubkeys, value)
			case "contributor":
				m.ContributorPubkeys = append(m.ContributorPubkeys, value)
			}
		}
	}

	if m.Summary == "" && m.Description == "" && ev.Content != "" {
		m.Summary = ev.Content
	}
	return m
}

func parseCalendarBase(ev Event) *CalendarMetadata {
	m := &CalendarMetadata{Content: ev.Content}

	for _, tag := range ev.Tags {
		if len(tag) == 0 {
			continue
		}
		value := tagElem(tag, 1)

		switch tag[0] {
		case "d":
			m.D = value
		case "title":
			m.Title = value
			m.Name = value
		case "name":
			m.Name = value
			if m.Title == "" {
				m.Title = value
			}
		case "summary":
			m.Summary = value
		case "description":
			m.Description = value
		case "image":
			m.Image = value
		case "location":
			m.Location = value
		case "g":
			m.Geohash = value
		case "start":
			m.Start = value
		case "end":
			m.End = value
		case "start_t":
			m.StartT = value
		case "end_t":
			m.EndT = value
		case "start_tzid", "start_tz":
			m.StartTZID = value
		case "end_tzid", "end_tz":
			m.EndTZID = value
		case "status":
			m.Status = value
		case "rsvp":
			m.RSVP = value == "1" || value == "true"
		case "p":
			m.Participants = append(m.Participants, Participant{
				Pubkey: value,
				Relay:  tagElem(tag, 2),
				Role:   tagElem(tag, 3),
			})
		case "t":
			m.Categories = append(m.Categories, value)
		}
	}

	if m.Title == "" && m.Name != "" {
		m.Title = m.Name
	}
	return m
}

// ParseCalendarEventDate parses a date-based calendar event (kind 31922).
// Start/End stay opaque ISO date strings.
func ParseCalendarEventDate(ev Event) *CalendarMetadata {
	return parseCalendarBase(ev)
}

// ParseCalendarEventTime parses a time-based calendar event (kind 31923).
// All-digit Start/End values are coerced to unix seconds.
func ParseCalendarEventTime(ev Event) *CalendarMetadata {
	m := parseCalendarBase(ev)
	if isAllDigits(m.Start) {
		if v, err := strconv.ParseInt(m.Start, 10, 64); err == nil {
			m.StartUnix = v
		}
	}
	if isAllDigits(m.End) {
		if v, err := strconv.ParseInt(m.End, 10, 64); err == nil {
			m.EndUnix = v
		}
	}
	return m
}

// ParseProfileEvent parses the JSON content of a kind-0 event. Invalid JSON
// yields an empty profile, never an error.
func ParseProfileEvent(ev Event) *ProfileMetadata {
	var m ProfileMetadata
	if err := json.Unmarshal([]byte(ev.Content), &m); err != nil {
		slog.Debug("unparseable profile content", "event_id", ev.ID, "error", err)
		return &ProfileMetadata{}
	}
	return &m
}

// ParseArticleEvent parses long-form content metadata (kinds 30023/30029).
func ParseArticleEvent(ev Event) *ArticleMetadata {
	m := &ArticleMetadata{}

	for _, tag := range ev.Tags {
		if len(tag) == 0 {
			continue
		}
		value := tagElem(tag, 1)

		switch tag[0] {
		case "d":
			m.D = value
		case "title":
			m.Title = value
			m.Name = value
		case "summary":
			m.Summary = value
			m.Description = value
		case "image":
			m.Image = value
		case "url":
			m.URL = value
		case "published_at":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				m.PublishedAt = v
			}
		}
	}

	if m.Summary == "" && ev.Content != "" {
		m.Summary = truncateRunes(ev.Content, 200)
		m.Description = m.Summary
	}
	if m.Title == "" && ev.Content != "" {
		if line := firstNonBlankLine(ev.Content); line != "" {
			m.Title = truncateRunes(line, 80)
			m.Name = m.Title
		}
	}
	return m
}

// ParseNoteEvent derives title and summary from a note's content.
func ParseNoteEvent(ev Event) *NoteMetadata {
	m := &NoteMetadata{}
	content := strings.TrimSpace(ev.Content)

	if line := firstNonBlankLine(content); line != "" {
		m.Title = truncateRunes(line, 80)
		m.Name = m.Title
	}
	if content != "" {
		m.Description = content
		m.Summary = truncateRunes(content, 200)
	}
	return m
}

// ParseEvent classifies an event and extracts its kind-specific metadata.
// Unknown kinds get type note with nil metadata, kept for forward
// compatibility.
func ParseEvent(ev Event) ParsedEvent {
	parsed := ParsedEvent{
		Event:    ev,
		Type:     GetEventType(ev.Kind),
		NostrURI: ComputeNostrURI(ev),
	}

	switch ev.Kind {
	case KindAMB:
		parsed.Metadata = ParseAMBEvent(ev)
	case KindCalendarDate:
		parsed.Metadata = ParseCalendarEventDate(ev)
	case KindCalendarTime:
		parsed.Metadata = ParseCalendarEventTime(ev)
	case KindProfile:
		parsed.Metadata = ParseProfileEvent(ev)
	case KindArticle, KindArticleLegacy:
		parsed.Metadata = ParseArticleEvent(ev)
	case KindNote:
		parsed.Metadata = ParseNoteEvent(ev)
	}
	return parsed
}

// ParseEvents parses a batch of events in order.
func ParseEvents(events []Event) []ParsedEvent {
	parsed := make([]ParsedEvent, len(events))
	for i, ev := range events {
		parsed[i] = ParseEvent(ev)
	}
	return parsed
}

// ExtractProfiles builds a pubkey -> profile map from the kind-0 events in
// the batch. Later events overwrite earlier ones.
func ExtractProfiles(events []Event) map[string]*ProfileMetadata {
	profiles := make(map[string]*ProfileMetadata)
	for _, ev := range events {
		if ev.Kind == KindProfile {
			profiles[ev.PubKey] = ParseProfileEvent(ev)
		}
	}
	return profiles
}

// EnrichWithProfiles attaches author profiles to parsed events, returning a
// new slice.
func EnrichWithProfiles(events []ParsedEvent, profiles map[string]*ProfileMetadata) []ParsedEvent {
	enriched := make([]ParsedEvent, len(events))
	for i, pe := range events {
		pe.Author = profiles[pe.Event.PubKey]
		enriched[i] = pe
	}
	return enriched
}

func tagElem(tag []string, i int) string {
	if i < len(tag) {
		return tag[i]
	}
	return ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func firstNonBlankLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
