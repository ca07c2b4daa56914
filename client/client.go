// Package client maintains independent websocket connections to a set of
// Nostr relays, replays subscriptions to every connection that opens, and
// deduplicates delivered events by id before handing them to the
// application.
//
// All mutable state (connection map, subscription registry, dedup set) is
// guarded by the client mutex or handled atomically by the dedup backend;
// callbacks run on the connection goroutine that received the frame and
// must not block.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"nostr-feed/internal/seen"
	"nostr-feed/nostr"
)

// Config configures a Client. Callbacks are optional; nil callbacks drop
// their notifications.
type Config struct {
	Relays []string
	Debug  bool // log outgoing frames at debug level

	// Seen overrides the dedup backend. Defaults to an unbounded
	// in-memory set that only ClearCache empties.
	Seen seen.Backend

	OnEvent      func(nostr.Event)
	OnNotice     func(notice string)
	OnError      func(err error)
	OnConnect    func(relayURL string)
	OnDisconnect func(relayURL string)
}

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

// relayConn is one outbound link to one relay. Owned exclusively by the
// Client.
type relayConn struct {
	url     string
	mu      sync.Mutex
	writeMu sync.Mutex
	ws      *websocket.Conn
	state   connState
}

// subscription lives in the registry for the life of the client and is
// replayed, in creation order, to every connection that opens after it was
// created.
type subscription struct {
	id      string
	filters []nostr.Filter
}

// Client is the relay multiplexer.
type Client struct {
	cfg     Config
	seen    seen.Backend
	ownSeen bool

	mu       sync.Mutex
	conns    map[string]*relayConn
	subs     []*subscription
	subIndex map[string]*subscription

	eventsDispatched  atomic.Int64
	duplicatesDropped atomic.Int64
	framesDropped     atomic.Int64
}

// New creates a Client. It does not open any connections; call Connect.
func New(cfg Config) *Client {
	c := &Client{
		cfg:      cfg,
		seen:     cfg.Seen,
		conns:    make(map[string]*relayConn),
		subIndex: make(map[string]*subscription),
	}
	if c.seen == nil {
		c.seen = seen.NewMemory()
		c.ownSeen = true
	}
	return c
}

// validateRelayURL accepts ws:// and wss:// URLs only.
func validateRelayURL(relayURL string) error {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL %q: %w", relayURL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("invalid relay URL %q: scheme must be ws or wss", relayURL)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("invalid relay URL %q: missing host", relayURL)
	}
	return nil
}

// Connect starts one dial per configured relay that is not already
// connected. It never blocks on network I/O; dial results arrive through
// the OnConnect/OnError callbacks. ctx bounds the dials only.
func (c *Client) Connect(ctx context.Context) {
	slog.Debug("connecting to relays", "relays", c.cfg.Relays)

	for _, relayURL := range c.cfg.Relays {
		if err := validateRelayURL(relayURL); err != nil {
			c.reportError(err)
			continue
		}

		c.mu.Lock()
		if _, exists := c.conns[relayURL]; exists {
			c.mu.Unlock()
			continue
		}
		rc := &relayConn{url: relayURL, state: stateConnecting}
		c.conns[relayURL] = rc
		c.mu.Unlock()

		go c.dial(ctx, rc)
	}
}

func (c *Client) dial(ctx context.Context, rc *relayConn) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rc.url, nil)
	if err != nil {
		slog.Warn("relay dial failed", "relay", rc.url, "error", err)
		c.mu.Lock()
		delete(c.conns, rc.url)
		c.mu.Unlock()
		c.reportError(fmt.Errorf("connect %s: %w", rc.url, err))
		return
	}

	rc.mu.Lock()
	if rc.state == stateClosed {
		// Disconnect raced the dial
		rc.mu.Unlock()
		ws.Close()
		return
	}
	rc.ws = ws
	rc.state = stateOpen
	rc.mu.Unlock()

	slog.Debug("relay connected", "relay", rc.url)

	// Replay existing subscriptions in creation order before anything
	// else goes out on this connection.
	c.mu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, sub := range subs {
		c.sendFrame(rc, reqFrame(sub.id, sub.filters))
	}

	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(rc.url)
	}

	c.readLoop(rc)
}

// readLoop reads frames until the transport fails. A malformed frame is
// logged and dropped; it never terminates the connection.
func (c *Client) readLoop(rc *relayConn) {
	for {
		_, data, err := rc.ws.ReadMessage()
		if err != nil {
			c.dropConn(rc, err)
			return
		}
		c.handleFrame(rc, data)
	}
}

func (c *Client) handleFrame(rc *relayConn, data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
		slog.Warn("malformed frame", "relay", rc.url, "error", err)
		c.framesDropped.Add(1)
		return
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		slog.Warn("malformed frame label", "relay", rc.url, "error", err)
		c.framesDropped.Add(1)
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			c.framesDropped.Add(1)
			return
		}
		var ev nostr.Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			slog.Warn("malformed event", "relay", rc.url, "error", err)
			c.framesDropped.Add(1)
			return
		}
		c.dispatchEvent(rc, ev)

	case "EOSE":
		slog.Debug("eose", "relay", rc.url)

	case "NOTICE":
		var notice string
		if len(frame) >= 2 {
			json.Unmarshal(frame[1], &notice)
		}
		slog.Info("relay notice", "relay", rc.url, "notice", notice)
		if c.cfg.OnNotice != nil {
			c.cfg.OnNotice(notice)
		}

	case "OK":
		var eventID, message string
		var accepted bool
		if len(frame) >= 4 {
			json.Unmarshal(frame[1], &eventID)
			json.Unmarshal(frame[2], &accepted)
			json.Unmarshal(frame[3], &message)
		}
		slog.Debug("ok", "relay", rc.url, "event_id", eventID, "accepted", accepted, "message", message)

	case "CLOSED":
		var subID, message string
		if len(frame) >= 2 {
			json.Unmarshal(frame[1], &subID)
		}
		if len(frame) >= 3 {
			json.Unmarshal(frame[2], &message)
		}
		slog.Info("subscription closed by relay", "relay", rc.url, "subscription", subID, "message", message)

	default:
		slog.Warn("unknown frame type", "relay", rc.url, "type", label)
	}
}

// dispatchEvent hands an event to the application exactly once per id,
// regardless of how many relays deliver it.
func (c *Client) dispatchEvent(rc *relayConn, ev nostr.Event) {
	fresh, err := c.seen.MarkIfNew(context.Background(), ev.ID)
	if err != nil {
		// Dedup backend failure: prefer a possible duplicate over a
		// lost event.
		slog.Warn("dedup backend error", "error", err)
		fresh = true
	}
	if !fresh {
		c.duplicatesDropped.Add(1)
		return
	}

	ev.RelaysSeen = []string{rc.url}
	c.eventsDispatched.Add(1)
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(ev)
	}
}

// dropConn tears down a connection once and fires the callbacks.
func (c *Client) dropConn(rc *relayConn, cause error) {
	rc.mu.Lock()
	if rc.state == stateClosed {
		rc.mu.Unlock()
		return
	}
	rc.state = stateClosed
	if rc.ws != nil {
		rc.ws.Close()
	}
	rc.mu.Unlock()

	c.mu.Lock()
	delete(c.conns, rc.url)
	c.mu.Unlock()

	if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Warn("relay connection lost", "relay", rc.url, "error", cause)
		c.reportError(fmt.Errorf("relay %s: %w", rc.url, cause))
	} else {
		slog.Debug("relay disconnected", "relay", rc.url)
	}
	if c.cfg.OnDisconnect != nil {
		c.cfg.OnDisconnect(rc.url)
	}
}

// Disconnect closes every connection. Subscriptions stay registered.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conns := make([]*relayConn, 0, len(c.conns))
	for _, rc := range c.conns {
		conns = append(conns, rc)
	}
	c.mu.Unlock()

	for _, rc := range conns {
		c.dropConn(rc, nil)
	}
}

// Close disconnects and releases the dedup backend if the client created
// it.
func (c *Client) Close() error {
	c.Disconnect()
	if c.ownSeen {
		return c.seen.Close()
	}
	return nil
}

// Subscribe registers a subscription and forwards the REQ to every open
// connection. Re-subscribing with an existing id replaces the filters in
// place, keeping the original replay position.
func (c *Client) Subscribe(id string, filters []nostr.Filter) {
	c.mu.Lock()
	if sub, ok := c.subIndex[id]; ok {
		sub.filters = filters
	} else {
		sub := &subscription{id: id, filters: filters}
		c.subs = append(c.subs, sub)
		c.subIndex[id] = sub
	}
	conns := c.openConns()
	c.mu.Unlock()

	frame := reqFrame(id, filters)
	for _, rc := range conns {
		c.sendFrame(rc, frame)
	}
}

// Unsubscribe removes the subscription and sends CLOSE to relays whose
// connection is currently open. It never queues a close for later
// delivery.
func (c *Client) Unsubscribe(id string) {
	c.mu.Lock()
	if _, ok := c.subIndex[id]; ok {
		delete(c.subIndex, id)
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
	}
	conns := c.openConns()
	c.mu.Unlock()

	frame := closeFrame(id)
	for _, rc := range conns {
		c.sendFrame(rc, frame)
	}
}

// UnsubscribeAll removes every subscription.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	ids := make([]string, len(c.subs))
	for i, sub := range c.subs {
		ids[i] = sub.id
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Unsubscribe(id)
	}
}

// openConns must be called with c.mu held.
func (c *Client) openConns() []*relayConn {
	var open []*relayConn
	for _, rc := range c.conns {
		rc.mu.Lock()
		if rc.state == stateOpen {
			open = append(open, rc)
		}
		rc.mu.Unlock()
	}
	return open
}

// IsConnected reports whether at least one relay connection is open.
func (c *Client) IsConnected() bool {
	return c.ConnectedRelayCount() > 0
}

// ConnectedRelayCount returns the number of open relay connections.
func (c *Client) ConnectedRelayCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.openConns())
}

// ClearCache resets the dedup set: previously seen event ids will be
// dispatched again when redelivered.
func (c *Client) ClearCache() error {
	return c.seen.Clear(context.Background())
}

// Stats is a snapshot of the client counters.
type Stats struct {
	EventsDispatched  int64
	DuplicatesDropped int64
	FramesDropped     int64
}

// GetStats returns the current counter values.
func (c *Client) GetStats() Stats {
	return Stats{
		EventsDispatched:  c.eventsDispatched.Load(),
		DuplicatesDropped: c.duplicatesDropped.Load(),
		FramesDropped:     c.framesDropped.Load(),
	}
}

func (c *Client) reportError(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

// reqFrame builds ["REQ", id, filter, filter...].
func reqFrame(id string, filters []nostr.Filter) []interface{} {
	frame := make([]interface{}, 0, len(filters)+2)
	frame = append(frame, "REQ", id)
	for _, f := range filters {
		frame = append(frame, f)
	}
	return frame
}

// closeFrame builds ["CLOSE", id].
func closeFrame(id string) []interface{} {
	return []interface{}{"CLOSE", id}
}

var errConnNotOpen = errors.New("connection not open")

// sendFrame writes one frame on the connection, serialized by the write
// mutex. Send failures are per-connection: they are reported and the
// other connections keep running.
func (c *Client) sendFrame(rc *relayConn, frame []interface{}) {
	rc.mu.Lock()
	ws := rc.ws
	open := rc.state == stateOpen
	rc.mu.Unlock()
	if !open || ws == nil {
		c.reportError(fmt.Errorf("send to %s: %w", rc.url, errConnNotOpen))
		return
	}

	if c.cfg.Debug {
		slog.Debug("send frame", "relay", rc.url, "frame", frame)
	}

	rc.writeMu.Lock()
	err := ws.WriteJSON(frame)
	rc.writeMu.Unlock()
	if err != nil {
		slog.Warn("send failed", "relay", rc.url, "error", err)
		c.reportError(fmt.Errorf("send to %s: %w", rc.url, err))
	}
}
