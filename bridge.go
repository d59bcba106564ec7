package bridge

import (
	"context"
	"sync"
	"time"
)

// SendResult reports the outcome of one delivery attempt to a client
type SendResult int

const (
	SendOK           SendResult = iota // delivered (or queued for delivery)
	SendBackpressure                   // client buffer full; chunk dropped, client kept
	SendFatal                          // client unusable; remove immediately
)

// Client is one subscribed network consumer of the serial stream. Send and
// Heartbeat must not block beyond a bounded enqueue attempt; slowness is
// reported as SendBackpressure, a dead connection as SendFatal.
type Client interface {
	ID() string
	Send(p []byte) SendResult
	Heartbeat() SendResult
}

// Transmitter is the blocking transmit primitive of the serial transport
type Transmitter interface {
	Transmit(p []byte) error
}

// Bridge relays bytes between one serial endpoint and many network clients.
// The client registry is guarded by a mutex held only for map mutation and
// snapshotting, never across sends.
type Bridge struct {
	mu      sync.Mutex
	clients map[string]Client

	indicator *Indicator
	tx        Transmitter
	linkUp    func() bool
	heartbeat time.Duration
}

// NewBridge creates a bridge. linkUp reports whether a serial device is
// currently attached; it decides the state restored when the last client
// unsubscribes. A nil linkUp is treated as "not attached".
func NewBridge(indicator *Indicator, tx Transmitter, linkUp func() bool, opts ...Option) (*Bridge, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	return &Bridge{
		clients:   make(map[string]Client),
		indicator: indicator,
		tx:        tx,
		linkUp:    linkUp,
		heartbeat: config.HeartbeatInterval,
	}, nil
}

// Subscribe adds a client to the registry. Adding the first client raises
// the indicator to StateTerminalActive (subject to state priority). Adding
// an already subscribed client is a no-op.
func (b *Bridge) Subscribe(c Client) {
	b.mu.Lock()
	if _, ok := b.clients[c.ID()]; ok {
		b.mu.Unlock()
		return
	}
	b.clients[c.ID()] = c
	first := len(b.clients) == 1
	b.mu.Unlock()

	if first {
		b.indicator.Set(StateTerminalActive)
	}
}

// Unsubscribe removes a client if present. When the registry empties, the
// indicator drops back to StateSerialConnected or StateIdle depending on
// whether a serial device is attached.
func (b *Bridge) Unsubscribe(c Client) {
	b.mu.Lock()
	if _, ok := b.clients[c.ID()]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, c.ID())
	empty := len(b.clients) == 0
	b.mu.Unlock()

	if empty {
		b.indicator.Set(b.idleState())
	}
}

// ClientCount returns the number of subscribed clients
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// OnSerialData broadcasts a serial chunk to every currently subscribed
// client. The broadcast operates on a snapshot of the registry taken at call
// time; clients subscribing mid-broadcast are not guaranteed this chunk.
// SendBackpressure drops the chunk for that client only; SendFatal removes
// the client. Per-client delivery order matches arrival order because all
// serial chunks are delivered from the single ingest goroutine.
func (b *Bridge) OnSerialData(p []byte) {
	for _, c := range b.snapshot() {
		if c.Send(p) == SendFatal {
			b.Unsubscribe(c)
		}
	}
}

// OnClientData forwards client input verbatim to the serial transmitter
func (b *Bridge) OnClientData(p []byte) error {
	if b.tx == nil {
		return ErrNoTransmitter
	}
	return b.tx.Transmit(p)
}

// RunHeartbeat sends a periodic control frame to every client until ctx is
// done. Any non-Backpressure delivery failure is treated exactly like a
// fatal data send: the client is removed.
func (b *Bridge) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range b.snapshot() {
				if c.Heartbeat() == SendFatal {
					b.Unsubscribe(c)
				}
			}
		}
	}
}

// snapshot copies the registry under the lock so sends happen outside it
func (b *Bridge) snapshot() []Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Client, 0, len(b.clients))
	for _, c := range b.clients {
		out = append(out, c)
	}
	return out
}

func (b *Bridge) idleState() DeviceState {
	if b.linkUp != nil && b.linkUp() {
		return StateSerialConnected
	}
	return StateIdle
}
