package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sakif/skillswap/internal/model"
)

// outboundBuffer is how many undelivered events a slow client may hold before
// new ones are dropped.
const outboundBuffer = 16

// Client is one live connection. Outbound is never closed; Done is closed
// once the connection is gone so writers can stop.
type Client struct {
	ID       uuid.UUID
	Identity string
	Outbound chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates an unregistered client for the given member.
func NewClient(identity string) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: identity,
		Outbound: make(chan Event, outboundBuffer),
		done:     make(chan struct{}),
	}
}

// Done is closed when the client has been shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client as gone. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// send queues ev without blocking. It reports false if the buffer is full or
// the client is closed.
func (c *Client) send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Outbound <- ev:
		return true
	default:
		return false
	}
}

// Hub maps identities to their most recently registered client. It also
// tracks every open connection, registered or not, so Disconnect can reach
// them all.
type Hub struct {
	mu     sync.RWMutex
	logger *slog.Logger
	users  map[string]*Client
	live   map[*Client]struct{}

	// nodeID tags envelopes this process publishes so the forwarder can
	// ignore its own messages.
	nodeID string
	bus    Bus
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With(slog.String("component", "relay")),
		users:  make(map[string]*Client),
		live:   make(map[*Client]struct{}),
		nodeID: uuid.NewString(),
	}
}

// Register maps identity to c and broadcasts presence.
//
// Re-registering the same client, or registering a closed one, is a no-op.
// Registering a different client for an identity that is already connected
// replaces the old mapping: the newest connection receives deliveries from
// now on.
func (h *Hub) Register(identity string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.users[identity]; ok && existing == c {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	replaced := h.users[identity] != nil
	h.users[identity] = c
	h.live[c] = struct{}{}

	h.logger.Debug("client registered",
		slog.String("identity", identity),
		slog.String("client_id", c.ID.String()),
		slog.Bool("replaced", replaced),
	)
	h.broadcastPresenceLocked()
}

// Track records an open connection before it registers.
func (h *Hub) Track(c *Client) {
	h.mu.Lock()
	h.live[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister forgets c and removes every mapping that points at it, then
// broadcasts presence. A mapping that a newer client has since taken over is
// left alone.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.live, c)
	removed := false
	for identity, existing := range h.users {
		if existing == c {
			delete(h.users, identity)
			removed = true
		}
	}
	if removed {
		h.logger.Debug("client unregistered", slog.String("client_id", c.ID.String()))
		h.broadcastPresenceLocked()
	}
}

// Disconnect closes every connection identity has open, on this node and,
// when a bus is attached, on every other node. The member has to connect
// again, which puts them back through the auth gate. It reports how many
// local connections were closed.
func (h *Hub) Disconnect(ctx context.Context, identity string) int {
	closed := h.disconnectLocal(identity)

	h.mu.RLock()
	bus := h.bus
	h.mu.RUnlock()
	if bus != nil {
		env := Envelope{Origin: h.nodeID, Receiver: identity, Event: Event{Type: EventDisconnect}}
		if err := bus.Publish(ctx, env); err != nil {
			h.logger.Warn("publishing disconnect",
				slog.String("identity", identity),
				slog.String("error", err.Error()),
			)
		}
	}
	return closed
}

func (h *Hub) disconnectLocal(identity string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for c := range h.live {
		if c.Identity != identity {
			continue
		}
		c.Close()
		delete(h.live, c)
		closed++
	}
	_, registered := h.users[identity]
	delete(h.users, identity)

	if closed > 0 || registered {
		h.logger.Info("member disconnected",
			slog.String("identity", identity),
			slog.Int("connections", closed),
		)
	}
	if registered {
		h.broadcastPresenceLocked()
	}
	return closed
}

// Online returns the identities connected to this node, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.users))
	for identity := range h.users {
		users = append(users, identity)
	}
	sort.Strings(users)
	return users
}

// IsOnline reports whether identity has a client on this node.
func (h *Hub) IsOnline(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[identity]
	return ok
}

// RelayMessage delivers a chat line to receiver. It reports whether the event
// was handed to a local client or published to the bus. An offline receiver
// is not an error.
func (h *Hub) RelayMessage(ctx context.Context, senderID, receiverID, text string) bool {
	return h.route(ctx, receiverID, Event{
		Type: EventMessage,
		Data: ChatPayload{SenderID: senderID, Text: text},
	})
}

// RelayNotification delivers a notification to receiver with the same
// best-effort semantics as RelayMessage.
func (h *Hub) RelayNotification(ctx context.Context, senderName, receiverID, message string) bool {
	return h.route(ctx, receiverID, Event{
		Type: EventNotification,
		Data: NotificationPayload{SenderName: senderName, Message: message},
	})
}

// NotifyRequest tells receiver that senderName sent them a new request.
func (h *Hub) NotifyRequest(ctx context.Context, senderName, receiverID string, kind model.RequestKind) bool {
	return h.RelayNotification(ctx, senderName, receiverID, RequestNotice(senderName, kind))
}

func (h *Hub) route(ctx context.Context, receiverID string, ev Event) bool {
	if h.deliverLocal(receiverID, ev) {
		return true
	}

	h.mu.RLock()
	bus := h.bus
	h.mu.RUnlock()
	if bus == nil {
		return false
	}

	env := Envelope{Origin: h.nodeID, Receiver: receiverID, Event: ev}
	if err := bus.Publish(ctx, env); err != nil {
		h.logger.Warn("publishing relay event",
			slog.String("receiver", receiverID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// deliverLocal pushes ev to receiver's client on this node, if any.
func (h *Hub) deliverLocal(receiverID string, ev Event) bool {
	h.mu.RLock()
	c, ok := h.users[receiverID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if !c.send(ev) {
		h.logger.Warn("dropping relay event; outbound buffer full",
			slog.String("receiver", receiverID),
			slog.String("client_id", c.ID.String()),
			slog.String("type", string(ev.Type)),
		)
		return false
	}
	return true
}

// broadcastPresenceLocked sends the current identity list to every
// registered client. h.mu must be held for writing so snapshots reach each
// client in the order the map changed. send never blocks.
func (h *Hub) broadcastPresenceLocked() {
	users := make([]string, 0, len(h.users))
	for identity := range h.users {
		users = append(users, identity)
	}
	sort.Strings(users)

	ev := Event{Type: EventPresence, Data: PresencePayload{Users: users}}
	for _, c := range h.users {
		if !c.send(ev) {
			h.logger.Warn("dropping presence update; outbound buffer full",
				slog.String("client_id", c.ID.String()),
			)
		}
	}
}

// AttachBus connects the hub to other nodes. Events for receivers not
// connected here are published to bus, and events published by other nodes
// are delivered to local clients. The forwarder stops when ctx is cancelled.
func (h *Hub) AttachBus(ctx context.Context, bus Bus) error {
	err := bus.StartForwarder(ctx, func(env Envelope) {
		if env.Origin == h.nodeID {
			return
		}
		if env.Event.Type == EventDisconnect {
			h.disconnectLocal(env.Receiver)
			return
		}
		h.deliverLocal(env.Receiver, env.Event)
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.bus = bus
	h.mu.Unlock()
	return nil
}

// Envelope carries an event between nodes.
type Envelope struct {
	Origin   string `json:"origin"`
	Receiver string `json:"receiver"`
	Event    Event  `json:"event"`
}

// UnmarshalJSON keeps Event.Data as raw JSON so it is re-sent to the client
// byte-for-byte instead of being decoded into a map.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw struct {
		Origin   string `json:"origin"`
		Receiver string `json:"receiver"`
		Event    struct {
			Type EventType       `json:"type"`
			Data json.RawMessage `json:"data,omitempty"`
		} `json:"event"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Origin = raw.Origin
	e.Receiver = raw.Receiver
	e.Event = Event{Type: raw.Event.Type}
	if len(raw.Event.Data) > 0 {
		e.Event.Data = raw.Event.Data
	}
	return nil
}
