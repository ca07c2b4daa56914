package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nostr-feed/nostr"
)

func eventFrame(t *testing.T, subID string, ev nostr.Event) []byte {
	t.Helper()
	data, err := json.Marshal([]interface{}{"EVENT", subID, ev})
	if err != nil {
		t.Fatalf("marshal event frame: %v", err)
	}
	return data
}

func TestHandleFrameDedup(t *testing.T) {
	var got []nostr.Event
	c := New(Config{
		OnEvent: func(ev nostr.Event) { got = append(got, ev) },
	})

	ev := nostr.Event{ID: "abc123", Kind: 1, Content: "hello"}
	rc1 := &relayConn{url: "wss://one.example"}
	rc2 := &relayConn{url: "wss://two.example"}

	c.handleFrame(rc1, eventFrame(t, "sub1", ev))
	c.handleFrame(rc2, eventFrame(t, "sub1", ev))

	if len(got) != 1 {
		t.Fatalf("expected exactly 1 dispatch, got %d", len(got))
	}
	if got[0].ID != "abc123" {
		t.Errorf("wrong event dispatched: %s", got[0].ID)
	}
	if len(got[0].RelaysSeen) != 1 || got[0].RelaysSeen[0] != "wss://one.example" {
		t.Errorf("RelaysSeen = %v, want first relay only", got[0].RelaysSeen)
	}

	stats := c.GetStats()
	if stats.EventsDispatched != 1 {
		t.Errorf("EventsDispatched = %d, want 1", stats.EventsDispatched)
	}
	if stats.DuplicatesDropped != 1 {
		t.Errorf("DuplicatesDropped = %d, want 1", stats.DuplicatesDropped)
	}
}

func TestHandleFrameClearCacheRedispatches(t *testing.T) {
	var count int
	c := New(Config{
		OnEvent: func(nostr.Event) { count++ },
	})
	rc := &relayConn{url: "wss://relay.example"}
	ev := nostr.Event{ID: "ev1", Kind: 1}

	c.handleFrame(rc, eventFrame(t, "s", ev))
	c.handleFrame(rc, eventFrame(t, "s", ev))
	if count != 1 {
		t.Fatalf("before clear: %d dispatches, want 1", count)
	}

	if err := c.ClearCache(); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	c.handleFrame(rc, eventFrame(t, "s", ev))
	if count != 2 {
		t.Errorf("after clear: %d dispatches, want 2", count)
	}
}

func TestHandleFrameMalformed(t *testing.T) {
	var events int
	c := New(Config{
		OnEvent: func(nostr.Event) { events++ },
	})
	rc := &relayConn{url: "wss://relay.example"}

	frames := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"type":"EVENT"}`),
		[]byte(`[]`),
		[]byte(`[42, "sub"]`),
		[]byte(`["EVENT", "sub"]`),
		[]byte(`["EVENT", "sub", "not an object"]`),
	}
	for _, frame := range frames {
		c.handleFrame(rc, frame)
	}

	if events != 0 {
		t.Errorf("malformed frames dispatched %d events", events)
	}
	if dropped := c.GetStats().FramesDropped; dropped != int64(len(frames)) {
		t.Errorf("FramesDropped = %d, want %d", dropped, len(frames))
	}

	// the connection keeps working after garbage
	c.handleFrame(rc, eventFrame(t, "s", nostr.Event{ID: "after", Kind: 1}))
	if events != 1 {
		t.Errorf("event after malformed frames not dispatched")
	}
}

func TestHandleFrameNotice(t *testing.T) {
	var notices []string
	c := New(Config{
		OnNotice: func(n string) { notices = append(notices, n) },
	})
	rc := &relayConn{url: "wss://relay.example"}

	c.handleFrame(rc, []byte(`["NOTICE", "rate limited"]`))
	c.handleFrame(rc, []byte(`["EOSE", "sub1"]`))
	c.handleFrame(rc, []byte(`["OK", "evid", true, ""]`))
	c.handleFrame(rc, []byte(`["CLOSED", "sub1", "auth-required: please"]`))
	c.handleFrame(rc, []byte(`["FUTURE", "whatever"]`))

	if len(notices) != 1 || notices[0] != "rate limited" {
		t.Errorf("notices = %v", notices)
	}
}

func TestSubscriptionRegistryOrder(t *testing.T) {
	c := New(Config{})

	c.Subscribe("first", []nostr.Filter{{Kinds: []int{1}}})
	c.Subscribe("second", []nostr.Filter{{Kinds: []int{0}}})
	c.Subscribe("third", []nostr.Filter{{Kinds: []int{30023}}})

	// replacing filters keeps the original position
	c.Subscribe("first", []nostr.Filter{{Kinds: []int{30142}}})

	var ids []string
	c.mu.Lock()
	for _, sub := range c.subs {
		ids = append(ids, sub.id)
	}
	replaced := c.subIndex["first"].filters
	c.mu.Unlock()

	want := []string{"first", "second", "third"}
	if len(ids) != len(want) {
		t.Fatalf("registry has %d entries, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d = %q, want %q", i, ids[i], want[i])
		}
	}
	if len(replaced) != 1 || len(replaced[0].Kinds) != 1 || replaced[0].Kinds[0] != 30142 {
		t.Errorf("filters not replaced in place: %+v", replaced)
	}

	c.Unsubscribe("second")
	c.mu.Lock()
	n := len(c.subs)
	_, stillIndexed := c.subIndex["second"]
	c.mu.Unlock()
	if n != 2 || stillIndexed {
		t.Errorf("unsubscribe left registry at %d entries, indexed=%v", n, stillIndexed)
	}

	c.UnsubscribeAll()
	c.mu.Lock()
	n = len(c.subs)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("UnsubscribeAll left %d subscriptions", n)
	}
}

func TestReqFrameJSON(t *testing.T) {
	since := int64(1700000000)
	frame := reqFrame("abc", []nostr.Filter{
		{Kinds: []int{30142}, Since: &since, TTags: []string{"physics"}},
	})
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	if !strings.HasPrefix(got, `["REQ","abc",{`) {
		t.Errorf("frame prefix wrong: %s", got)
	}
	for _, want := range []string{`"kinds":[30142]`, `"since":1700000000`, `"#t":["physics"]`} {
		if !strings.Contains(got, want) {
			t.Errorf("frame %s missing %s", got, want)
		}
	}

	data, err = json.Marshal(closeFrame("abc"))
	if err != nil {
		t.Fatalf("marshal close: %v", err)
	}
	if string(data) != `["CLOSE","abc"]` {
		t.Errorf("close frame = %s", data)
	}
}

func TestValidateRelayURL(t *testing.T) {
	valid := []string{"wss://relay.example.com", "ws://localhost:8080", "wss://relay.example.com/path"}
	for _, u := range valid {
		if err := validateRelayURL(u); err != nil {
			t.Errorf("validateRelayURL(%q) = %v, want nil", u, err)
		}
	}
	invalid := []string{"https://relay.example.com", "relay.example.com", "wss://", "ftp://x.example", ""}
	for _, u := range invalid {
		if err := validateRelayURL(u); err == nil {
			t.Errorf("validateRelayURL(%q) = nil, want error", u)
		}
	}
}

// fakeRelay upgrades one websocket connection, records REQ/CLOSE frames
// and replays a scripted set of server frames after the first REQ.
type fakeRelay struct {
	upgrader websocket.Upgrader
	script   [][]byte

	mu       sync.Mutex
	received [][]json.RawMessage
}

func (fr *fakeRelay) handler(w http.ResponseWriter, r *http.Request) {
	ws, err := fr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	scripted := false
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		fr.mu.Lock()
		fr.received = append(fr.received, frame)
		fr.mu.Unlock()

		if !scripted {
			scripted = true
			for _, out := range fr.script {
				if err := ws.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			}
		}
	}
}

func (fr *fakeRelay) frameLabels() []string {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	var labels []string
	for _, frame := range fr.received {
		var label string
		if len(frame) > 0 {
			json.Unmarshal(frame[0], &label)
		}
		labels = append(labels, label)
	}
	return labels
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClientAgainstFakeRelay(t *testing.T) {
	ev := nostr.Event{ID: "dupevent", Kind: 1, Content: "once"}
	evData, _ := json.Marshal([]interface{}{"EVENT", "feed", ev})
	relay := &fakeRelay{
		script: [][]byte{
			evData,
			evData, // same id again: must not reach OnEvent twice
			[]byte(`["NOTICE","hello"]`),
			[]byte(`["EOSE","feed"]`),
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(relay.handler))
	defer srv.Close()

	var mu sync.Mutex
	var events []nostr.Event
	var notices []string
	connected := make(chan string, 1)

	c := New(Config{
		Relays: []string{wsURL(srv)},
		OnEvent: func(ev nostr.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
		OnNotice: func(n string) {
			mu.Lock()
			notices = append(notices, n)
			mu.Unlock()
		},
		OnConnect: func(relayURL string) {
			select {
			case connected <- relayURL:
			default:
			}
		},
	})
	defer c.Close()

	c.Subscribe("feed", []nostr.Filter{{Kinds: []int{1}}})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c.Connect(ctx)

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	waitFor(t, "notice", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notices) > 0
	})

	mu.Lock()
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	} else if events[0].ID != "dupevent" {
		t.Errorf("event id = %s", events[0].ID)
	}
	if len(notices) != 1 || notices[0] != "hello" {
		t.Errorf("notices = %v", notices)
	}
	mu.Unlock()

	if !c.IsConnected() {
		t.Error("IsConnected() = false after OnConnect fired")
	}
	if n := c.ConnectedRelayCount(); n != 1 {
		t.Errorf("ConnectedRelayCount() = %d, want 1", n)
	}

	// the replayed subscription reached the relay as a REQ
	waitFor(t, "REQ frame", func() bool {
		for _, l := range relay.frameLabels() {
			if l == "REQ" {
				return true
			}
		}
		return false
	})

	c.Unsubscribe("feed")
	waitFor(t, "CLOSE frame", func() bool {
		for _, l := range relay.frameLabels() {
			if l == "CLOSE" {
				return true
			}
		}
		return false
	})

	c.Disconnect()
	waitFor(t, "disconnect", func() bool { return !c.IsConnected() })
}
