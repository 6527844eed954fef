package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// ConnOptions tune a websocket endpoint. Zero fields take the defaults below.
type ConnOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultReadLimit    = 8 << 20
)

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	return o
}

// Conn is an Endpoint over a gorilla websocket. Outbound messages go through a bounded queue drained by a
// single writer goroutine, which also sends pings. A full queue makes Send wait until its context expires.
// Any write error closes the connection.
type Conn struct {
	id        string
	projectID string
	ws        *websocket.Conn
	send      chan []byte
	life      *Lifecycle
	opts      ConnOptions
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an upgraded websocket for projectID. The endpoint stays connecting until Start.
func NewConn(ws *websocket.Conn, projectID string, opts ConnOptions) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		id:        ulid.Make().String(),
		projectID: projectID,
		ws:        ws,
		send:      make(chan []byte, opts.SendBuffer),
		life:      NewLifecycle(),
		opts:      opts,
	}
}

// Start opens the endpoint and launches the writer. Reads stay with the caller (ReadMessage).
func (c *Conn) Start() {
	if !c.life.Open() {
		return
	}
	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	})
	go c.writeLoop()
}

// readTimeout allows one missed pong before the peer is considered gone.
func (c *Conn) readTimeout() time.Duration {
	return 2*c.opts.PingInterval + c.opts.WriteTimeout
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) ProjectID() string { return c.projectID }

func (c *Conn) State() State { return c.life.State() }

func (c *Conn) Done() <-chan struct{} { return c.life.Done() }

// RemoteAddr is the peer address of the underlying socket.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// Send queues msg. It returns ErrEndpointClosed once the connection is closed, or ctx.Err() if the queue
// stays full until ctx is done.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if c.life.State() != StateOpen {
		return ErrEndpointClosed
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.life.Done():
		return ErrEndpointClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessage returns the next text or binary frame payload. Each message extends the read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	return data, nil
}

// Close sends a close frame (best effort) and closes the socket. Safe to call from any goroutine, repeatedly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.life.Close()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.life.Done():
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				// a websocket write deadline cannot be recovered
				log.Printf("hub: write to %s failed: %v", c.id, err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
