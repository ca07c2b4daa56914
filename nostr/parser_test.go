package nostr

import (
	"strings"
	"testing"

	"nostr-feed/nip19"
)

const testPubkey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestGetEventType(t *testing.T) {
	cases := []struct {
		kind int
		want EventType
	}{
		{0, TypeProfile},
		{1, TypeNote},
		{30023, TypeArticle},
		{30029, TypeArticle},
		{30142, TypeAMB},
		{31922, TypeCalendar},
		{31923, TypeCalendar},
		{7, TypeNote},     // unknown kind falls back to note
		{99999, TypeNote}, // unknown kind falls back to note
	}
	for _, tc := range cases {
		if got := GetEventType(tc.kind); got != tc.want {
			t.Errorf("GetEventType(%d) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestParseAMBEvent(t *testing.T) {
	ev := Event{
		ID:     "e1",
		PubKey: testPubkey,
		Kind:   KindAMB,
		Tags: [][]string{
			{"d", "material-1"},
			{"title", "Lineare Algebra I"},
			{"#keywords", "mathematik"},
			{"#keywords", "vektoren"},
			{"#subject", "Mathematik"},
			{"#educationalLevel", "university"},
			{"#proficiencyLevel", "B2"},
			{"license", "CC-BY-4.0"},
			{"p", testPubkey, "wss://relay.example.com", "creator"},
			{"p", strings.Repeat("b", 64), "", "contributor"},
			{"p", strings.Repeat("c", 64)}, // no role, ignored
		},
		Content: "Einführung in Vektorräume",
	}

	m := ParseAMBEvent(ev)

	if m.D != "material-1" || m.Title != "Lineare Algebra I" {
		t.Errorf("scalar fields: d=%q title=%q", m.D, m.Title)
	}
	if len(m.Keywords) != 2 || m.Keywords[0] != "mathematik" || m.Keywords[1] != "vektoren" {
		t.Errorf("keywords = %v", m.Keywords)
	}
	if len(m.Subject) != 1 || m.Subject[0] != "Mathematik" {
		t.Errorf("subject = %v", m.Subject)
	}
	if m.EducationalLevel != "university" {
		t.Errorf("educationalLevel = %q", m.EducationalLevel)
	}
	if m.Extra["proficiencyLevel"] != "B2" {
		t.Errorf("extra = %v", m.Extra)
	}
	if m.License != "CC-BY-4.0" {
		t.Errorf("license = %q", m.License)
	}
	if len(m.CreatorPubkeys) != 1 || m.CreatorPubkeys[0] != testPubkey {
		t.Errorf("creatorPubkeys = %v", m.CreatorPubkeys)
	}
	if len(m.ContributorPubkeys) != 1 {
		t.Errorf("contributorPubkeys = %v", m.ContributorPubkeys)
	}
	// content fallback only applies when neither summary nor description
	// came from tags
	if m.Summary != "Einführung in Vektorräume" {
		t.Errorf("summary fallback = %q", m.Summary)
	}
}

func TestParseAMBEventNoContentFallbackWhenTagged(t *testing.T) {
	ev := Event{
		Kind:    KindAMB,
		Tags:    [][]string{{"summary", "from tag"}},
		Content: "from content",
	}
	m := ParseAMBEvent(ev)
	if m.Summary != "from tag" {
		t.Errorf("summary = %q, want tag value", m.Summary)
	}
}

func TestParseCalendarEventTimeCoercesUnix(t *testing.T) {
	ev := Event{
		Kind: KindCalendarTime,
		Tags: [][]string{
			{"title", "Vortrag"},
			{"start", "1700000000"},
			{"end", "1700003600"},
			{"start_tz", "Europe/Berlin"},
			{"rsvp", "1"},
			{"p", testPubkey, "wss://relay.example.com", "speaker"},
			{"t", "physics"},
		},
	}

	m := ParseCalendarEventTime(ev)

	if m.StartUnix != 1700000000 {
		t.Errorf("StartUnix = %d, want 1700000000", m.StartUnix)
	}
	if m.EndUnix != 1700003600 {
		t.Errorf("EndUnix = %d, want 1700003600", m.EndUnix)
	}
	if m.StartTZID != "Europe/Berlin" {
		t.Errorf("StartTZID = %q", m.StartTZID)
	}
	if !m.RSVP {
		t.Error("rsvp \"1\" should parse as true")
	}
	if len(m.Participants) != 1 || m.Participants[0].Role != "speaker" {
		t.Errorf("participants = %+v", m.Participants)
	}
	if len(m.Categories) != 1 || m.Categories[0] != "physics" {
		t.Errorf("categories = %v", m.Categories)
	}
}

func TestParseCalendarEventDateKeepsStrings(t *testing.T) {
	ev := Event{
		Kind: KindCalendarDate,
		Tags: [][]string{
			{"name", "Sommerfest"},
			{"start", "2026-06-21"},
			{"end", "2026-06-22"},
		},
	}

	m := ParseCalendarEventDate(ev)

	if m.Start != "2026-06-21" || m.End != "2026-06-22" {
		t.Errorf("start/end = %q/%q", m.Start, m.End)
	}
	if m.StartUnix != 0 {
		t.Errorf("StartUnix = %d, want 0 for date-based events", m.StartUnix)
	}
	// name is a deprecated alias: title back-fills from it
	if m.Title != "Sommerfest" || m.Name != "Sommerfest" {
		t.Errorf("title/name = %q/%q", m.Title, m.Name)
	}
}

func TestCalendarTitleWinsOverName(t *testing.T) {
	ev := Event{
		Kind: KindCalendarDate,
		Tags: [][]string{
			{"title", "Echter Titel"},
			{"name", "Alias"},
		},
	}
	m := ParseCalendarEventDate(ev)
	if m.Title != "Echter Titel" {
		t.Errorf("title = %q, want tag title to win", m.Title)
	}
	if m.Name != "Alias" {
		t.Errorf("name = %q", m.Name)
	}
}

func TestParseProfileEvent(t *testing.T) {
	ev := Event{
		Kind:    KindProfile,
		PubKey:  testPubkey,
		Content: `{"name":"Ada","about":"Mathematician","display_name":"Ada L."}`,
	}
	m := ParseProfileEvent(ev)
	if m.Name != "Ada" || m.About != "Mathematician" || m.DisplayName != "Ada L." {
		t.Errorf("profile = %+v", m)
	}
}

func TestParseProfileEventInvalidJSON(t *testing.T) {
	m := ParseProfileEvent(Event{Kind: KindProfile, Content: "not json"})
	if m == nil {
		t.Fatal("invalid JSON must yield an empty profile, not nil")
	}
	if m.Name != "" {
		t.Errorf("profile = %+v, want empty", m)
	}
}

func TestParseArticleEventFallbacks(t *testing.T) {
	longContent := strings.Repeat("x", 300)
	ev := Event{
		Kind:    KindArticle,
		Content: "\n\n  Die Überschrift steht hier\nZweite Zeile\n" + longContent,
	}

	m := ParseArticleEvent(ev)

	if m.Title != "Die Überschrift steht hier" {
		t.Errorf("title = %q", m.Title)
	}
	if len([]rune(m.Summary)) != 200 {
		t.Errorf("summary length = %d, want 200", len([]rune(m.Summary)))
	}
	if m.Description != m.Summary {
		t.Error("description should mirror derived summary")
	}
}

func TestParseArticleEventTags(t *testing.T) {
	ev := Event{
		Kind: KindArticle,
		Tags: [][]string{
			{"d", "post-1"},
			{"title", "Mein Artikel"},
			{"summary", "Kurz"},
			{"published_at", "1700000000"},
		},
		Content: "Langer Text",
	}

	m := ParseArticleEvent(ev)

	if m.D != "post-1" || m.Title != "Mein Artikel" || m.Name != "Mein Artikel" {
		t.Errorf("article = %+v", m)
	}
	if m.Summary != "Kurz" || m.Description != "Kurz" {
		t.Errorf("summary/description = %q/%q", m.Summary, m.Description)
	}
	if m.PublishedAt != 1700000000 {
		t.Errorf("publishedAt = %d", m.PublishedAt)
	}
}

func TestParseNoteEvent(t *testing.T) {
	title := strings.Repeat("a", 100)
	ev := Event{Kind: KindNote, Content: "  \n" + title + "\nrest"}

	m := ParseNoteEvent(ev)

	if len([]rune(m.Title)) != 80 {
		t.Errorf("title length = %d, want 80", len([]rune(m.Title)))
	}
	if m.Summary == "" || m.Description == "" {
		t.Error("summary/description should derive from content")
	}
}

func TestParseEventUnknownKindHasNilMetadata(t *testing.T) {
	parsed := ParseEvent(Event{ID: "e1", Kind: 7, Content: "+"})
	if parsed.Type != TypeNote {
		t.Errorf("type = %q, want note", parsed.Type)
	}
	if parsed.Metadata != nil {
		t.Errorf("metadata = %#v, want nil for unknown kind", parsed.Metadata)
	}
}

func TestParseProfileScenario(t *testing.T) {
	// Spec scenario: a kind-0 event parses to a profile whose nostr URI
	// decodes back to the same pubkey.
	ev := Event{Kind: KindProfile, PubKey: testPubkey, Content: `{"name":"Ada"}`}
	parsed := ParseEvent(ev)

	if parsed.Type != TypeProfile {
		t.Fatalf("type = %q", parsed.Type)
	}
	profile, ok := parsed.Metadata.(*ProfileMetadata)
	if !ok || profile.Name != "Ada" {
		t.Fatalf("metadata = %#v", parsed.Metadata)
	}
	if !strings.HasPrefix(parsed.NostrURI, "nostr:nprofile1") {
		t.Fatalf("nostrUri = %q", parsed.NostrURI)
	}
	decoded, ok := nip19.DecodeNprofile(strings.TrimPrefix(parsed.NostrURI, "nostr:"))
	if !ok || decoded.Pubkey != testPubkey {
		t.Errorf("decoded pubkey = %+v", decoded)
	}
}

func TestComputeNostrURI(t *testing.T) {
	note := Event{ID: strings.Repeat("1a", 32), Kind: KindNote}
	if uri := ComputeNostrURI(note); !strings.HasPrefix(uri, "nostr:nevent1") {
		t.Errorf("note uri = %q", uri)
	}

	amb := Event{PubKey: testPubkey, Kind: KindAMB, Tags: [][]string{{"d", "mat-1"}}}
	uri := ComputeNostrURI(amb)
	if !strings.HasPrefix(uri, "nostr:naddr1") {
		t.Fatalf("amb uri = %q", uri)
	}
	kind, ok := nip19.DecodeNaddrKind(uri)
	if !ok || kind != KindAMB {
		t.Errorf("decoded kind = %d, ok=%v", kind, ok)
	}

	// addressable kind without d tag has no URI
	if uri := ComputeNostrURI(Event{PubKey: testPubkey, Kind: KindCalendarTime}); uri != "" {
		t.Errorf("uri without d tag = %q, want empty", uri)
	}

	// unknown kind has no URI
	if uri := ComputeNostrURI(Event{ID: strings.Repeat("ab", 32), Kind: 7}); uri != "" {
		t.Errorf("uri for kind 7 = %q, want empty", uri)
	}
}

func TestExtractAndEnrichProfiles(t *testing.T) {
	events := []Event{
		{Kind: KindProfile, PubKey: "pk1", Content: `{"name":"Ada"}`},
		{Kind: KindNote, PubKey: "pk1", Content: "hello"},
		{Kind: KindNote, PubKey: "pk2", Content: "world"},
	}
	profiles := ExtractProfiles(events)
	if len(profiles) != 1 || profiles["pk1"].Name != "Ada" {
		t.Fatalf("profiles = %v", profiles)
	}

	enriched := EnrichWithProfiles(ParseEvents(events), profiles)
	if enriched[1].Author == nil || enriched[1].Author.Name != "Ada" {
		t.Errorf("author not attached: %+v", enriched[1].Author)
	}
	if enriched[2].Author != nil {
		t.Error("pk2 has no profile, author should be nil")
	}
}
