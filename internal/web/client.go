package web

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	bridge "github.com/allbin/serial-bridge"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from a peer.
	maxMessageSize = 64 * 1024

	// Outbound queue per client; a full queue is backpressure, not an error.
	sendQueueSize = 256
)

type wsFrame struct {
	msgType int
	data    []byte
}

// wsClient adapts one websocket connection to bridge.Client. Deliveries are
// enqueued on a bounded channel drained by a single write pump, so a slow
// peer surfaces as SendBackpressure and a dead one as SendFatal without
// ever blocking the broadcaster.
type wsClient struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	send      chan wsFrame
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// Ensure wsClient implements bridge.Client at compile time
var _ bridge.Client = (*wsClient)(nil)

func newWSClient(conn *websocket.Conn, log zerolog.Logger) *wsClient {
	id := uuid.NewString()
	return &wsClient{
		id:   id,
		conn: conn,
		log:  log.With().Str("client", id).Logger(),
		send: make(chan wsFrame, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *wsClient) ID() string { return c.id }

// Send queues a serial chunk for delivery
func (c *wsClient) Send(p []byte) bridge.SendResult {
	return c.enqueue(wsFrame{msgType: websocket.BinaryMessage, data: p})
}

// Heartbeat queues a liveness control frame
func (c *wsClient) Heartbeat() bridge.SendResult {
	return c.enqueue(wsFrame{msgType: websocket.PingMessage})
}

func (c *wsClient) enqueue(f wsFrame) bridge.SendResult {
	if c.closed.Load() {
		return bridge.SendFatal
	}
	select {
	case c.send <- f:
		return bridge.SendOK
	default:
		return bridge.SendBackpressure
	}
}

// close marks the client dead; the send channel is never closed so a racing
// enqueue can at worst land a frame nobody drains
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send queue onto the connection. Any write error
// kills the client; subsequent sends report SendFatal.
func (c *wsClient) writePump() {
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(f.msgType, f.data); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// readPump forwards peer input to the serial side until the connection
// drops. A transmit failure (no serial device attached) is reported to the
// peer as a text frame but does not end the session.
func (c *wsClient) readPump(onData func(p []byte) error) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(msg) == 0 {
			continue
		}
		if err := onData(msg); err != nil {
			c.log.Debug().Err(err).Msg("serial transmit failed")
			c.enqueue(wsFrame{msgType: websocket.TextMessage, data: []byte("error: " + err.Error())})
		}
	}
}
