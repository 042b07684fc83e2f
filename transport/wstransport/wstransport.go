// Package wstransport carries bridge messages over WebSocket connections.
//
// Each text frame is one wire message. Handler serves a bridge to browsers or
// Go clients; Dial opens the client side.
package wstransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"

	"github.com/broady/bridge"
	"github.com/broady/bridge/wire"
)

// ProtocolVersion is the wire protocol version this package speaks.
const ProtocolVersion = 1

// HandshakeParams are sent as query parameters when connecting.
type HandshakeParams struct {
	// Client names the connecting client, for logs.
	Client string `schema:"client"`

	// Protocol is the wire protocol version; zero means ProtocolVersion.
	Protocol int `schema:"protocol"`
}

var (
	decoder = schema.NewDecoder()
	encoder = schema.NewEncoder()
)

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// Conn is a WebSocket connection implementing wire.Channel.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	handler func(string)

	start sync.Once
	done  chan struct{}
	err   error
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{ws: ws, logger: logger, done: make(chan struct{})}
}

// Send writes message as one text frame.
func (c *Conn) Send(message string) error {
	select {
	case <-c.done:
		return wire.ErrChannelClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(message))
}

// OnReceive installs the inbound handler. The first call starts reading.
func (c *Conn) OnReceive(handler func(string)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	c.start.Do(func() { go c.readLoop() })
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = err
				c.logger.Debug("websocket read failed", slog.Any("error", err))
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h != nil {
			h(string(data))
		}
	}
}

// Done is closed when the connection stops reading.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the read error that ended the connection, nil after a clean
// close.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Options configure Handler.
type Options struct {
	// CheckOrigin reports whether a browser origin may connect. Nil allows
	// same-origin requests only.
	CheckOrigin func(r *http.Request) bool

	Logger *slog.Logger
}

// Handler upgrades requests to WebSocket connections and attaches each one to
// b until it closes.
func Handler(b *bridge.Bridge, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{CheckOrigin: opts.CheckOrigin}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params HandshakeParams
		if err := decoder.Decode(&params, r.URL.Query()); err != nil {
			http.Error(w, fmt.Sprintf("invalid handshake: %v", err), http.StatusBadRequest)
			return
		}
		if params.Protocol != 0 && params.Protocol != ProtocolVersion {
			http.Error(w, fmt.Sprintf("unsupported protocol version %d", params.Protocol), http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logger.Warn("websocket upgrade failed", slog.Any("error", err))
			return
		}
		conn := newConn(ws, logger)
		log := logger.With(slog.String("client", params.Client), slog.String("remote", r.RemoteAddr))
		log.Debug("client connected")
		detach := b.Attach(conn)

		select {
		case <-conn.Done():
		case <-r.Context().Done():
		}
		detach()
		conn.Close()
		log.Debug("client disconnected", slog.Any("error", conn.Err()))
	})
}

// Dial connects to a bridge served by Handler at rawURL (ws:// or wss://).
func Dial(ctx context.Context, rawURL string, params HandshakeParams) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if params.Protocol == 0 {
		params.Protocol = ProtocolVersion
	}
	q := u.Query()
	if err := encoder.Encode(params, q); err != nil {
		return nil, fmt.Errorf("encode handshake: %w", err)
	}
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", u.Redacted(), err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return newConn(ws, nil), nil
}
