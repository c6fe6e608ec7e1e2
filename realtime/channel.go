// Package realtime is the client side of the websocket event channel.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"parley/protocol"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 1 << 20
	sendBufferSize = 64
)

var (
	ErrClosed     = errors.New("realtime channel closed")
	ErrBufferFull = errors.New("realtime send buffer full")
)

// Handler receives inbound events, one at a time, in arrival order.
type Handler func(protocol.Event)

// Channel is one authenticated websocket connection.
type Channel struct {
	conn    *websocket.Conn
	handler Handler
	log     zerolog.Logger

	dialer       *websocket.Dialer
	pingInterval time.Duration
	pongWait     time.Duration
	onDisconnect func(error)

	send      chan []byte
	done      chan struct{}
	readDone  chan struct{}
	writeDone chan struct{}
	stopOnce  sync.Once

	// dispatchMu is held while the handler runs so Close can wait for it.
	dispatchMu sync.Mutex
	closed     atomic.Bool
	lost       atomic.Bool
}

type Option func(*Channel)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithKeepalive sets the ping interval and how long to wait for a pong.
func WithKeepalive(ping, pong time.Duration) Option {
	return func(c *Channel) {
		if ping > 0 {
			c.pingInterval = ping
		}
		if pong > 0 {
			c.pongWait = pong
		}
	}
}

// WithDialer replaces websocket.DefaultDialer, e.g. to set a handshake
// timeout.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithOnDisconnect is called once if the server side drops the connection.
// It is not called after Close.
func WithOnDisconnect(fn func(error)) Option {
	return func(c *Channel) { c.onDisconnect = fn }
}

// Dial opens the channel at rawURL authenticated with token and starts
// delivering inbound events to handler.
func Dial(ctx context.Context, rawURL, token string, handler Handler, opts ...Option) (*Channel, error) {
	c := &Channel{
		handler:      handler,
		log:          zerolog.Nop(),
		dialer:       websocket.DefaultDialer,
		pingInterval: 30 * time.Second,
		pongWait:     60 * time.Second,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
		writeDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	c.conn = conn
	c.log.Info().Str("url", rawURL).Msg("realtime connected")

	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Send queues ev for delivery without waiting for the server.
func (c *Channel) Send(ev protocol.Event) error {
	if c.closed.Load() || c.lost.Load() {
		return ErrClosed
	}
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendMessage emits a send_message event.
func (c *Channel) SendMessage(token string, receiverID int64, text string) error {
	return c.Send(protocol.SendMessageEvent{SendMessage: protocol.SendMessage{
		Token:      token,
		ReceiverID: receiverID,
		Message:    text,
	}})
}

// Done is closed once the connection is gone, by Close or by the server.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Once it returns the handler is not
// called again. It must not be called from inside the handler.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	// wait for an in-flight handler
	c.dispatchMu.Lock()
	c.dispatchMu.Unlock()

	c.stop()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	err := c.conn.Close()
	<-c.readDone
	<-c.writeDone
	c.log.Info().Msg("realtime closed")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Channel) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Channel) readLoop() {
	var lostErr error
	defer func() {
		close(c.readDone)
		if lostErr != nil && c.onDisconnect != nil {
			c.onDisconnect(lostErr)
		}
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.lost.Store(true)
				c.log.Warn().Err(err).Msg("realtime connection lost")
				c.stop()
				_ = c.conn.Close()
				lostErr = err
			}
			return
		}
		ev, err := protocol.Decode(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("drop realtime frame")
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) dispatch(ev protocol.Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.closed.Load() {
		return
	}
	c.handler(ev)
}

func (c *Channel) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		close(c.writeDone)
	}()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("realtime write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
