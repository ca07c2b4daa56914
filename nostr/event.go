// Package nostr defines the NIP-01 wire types and the kind-keyed event
// parser that turns raw relay events into typed metadata.
package nostr

import (
	"encoding/json"
)

// Event kinds handled by the parser. Unknown kinds fall back to note
// handling.
const (
	KindProfile       = 0     // profile metadata, JSON content
	KindNote          = 1     // short text note
	KindArticle       = 30023 // long-form content
	KindArticleLegacy = 30029 // legacy parameterized article
	KindAMB           = 30142 // AMB educational resource
	KindCalendarDate  = 31922 // date-based calendar event
	KindCalendarTime  = 31923 // time-based calendar event
)

// Event is a raw Nostr event (NIP-01). Received from relays and never
// mutated; event identity is the ID field.
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// TagValue returns the second element of the first tag named key, or "".
func (e *Event) TagValue(key string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns the second elements of every tag named key.
func (e *Event) TagValues(key string) []string {
	var values []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == key {
			values = append(values, tag[1])
		}
	}
	return values
}

// Filter is a NIP-01 subscription filter. The zero value matches
// everything.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Since   *int64
	Until   *int64
	Limit   int
	ETags   []string // #e tag filter
	PTags   []string // #p tag filter
	TTags   []string // #t tag filter
	DTags   []string // #d tag filter
	Search  string   // NIP-50 search query
}

// MarshalJSON renders the filter as the NIP-01 wire object, omitting empty
// members.
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{})
	if len(f.IDs) > 0 {
		obj["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		obj["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		obj["kinds"] = f.Kinds
	}
	if f.Since != nil {
		obj["since"] = *f.Since
	}
	if f.Until != nil {
		obj["until"] = *f.Until
	}
	if f.Limit > 0 {
		obj["limit"] = f.Limit
	}
	if len(f.ETags) > 0 {
		obj["#e"] = f.ETags
	}
	if len(f.PTags) > 0 {
		obj["#p"] = f.PTags
	}
	if len(f.TTags) > 0 {
		obj["#t"] = f.TTags
	}
	if len(f.DTags) > 0 {
		obj["#d"] = f.DTags
	}
	if f.Search != "" {
		obj["search"] = f.Search
	}
	return json.Marshal(obj)
}
