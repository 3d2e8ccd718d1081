package progress

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// ReconnectPolicy decides what the channel does when the server drops it.
// The zero value never reconnects; the next Open dials again instead.
type ReconnectPolicy struct {
	Enabled     bool
	MaxAttempts int
	Interval    time.Duration
}

// PolicyFromConfig converts the YAML reconnect section.
func PolicyFromConfig(cfg types.ReconnectConfig) ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     cfg.Enabled,
		MaxAttempts: cfg.MaxAttempts,
		Interval:    cfg.Interval,
	}
}

// Channel is the long-lived push connection of one console. It is opened on
// first use, kept across uploads, and released by Close. No outbound messages
// are ever written.
type Channel struct {
	url     string
	dialer  *websocket.Dialer
	policy  ReconnectPolicy
	handler func(types.PushMessage)
	onDrop  func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

// NewChannel returns an unopened channel that delivers decoded frames to
// handler. onDrop, if set, is called once per lost connection that the policy
// could not bring back; it is never called after Close.
func NewChannel(url string, policy ReconnectPolicy, handler func(types.PushMessage), onDrop func(error)) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		policy:  policy,
		handler: handler,
		onDrop:  onDrop,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Open dials the push endpoint unless a connection is already up.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect push channel %s: %v (status %s)", c.url, err, resp.Status)
		}
		return fmt.Errorf("failed to connect push channel %s: %v", c.url, err)
	}
	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)
	tool.DefaultLogger.Infof("[PushChannel] connected to %s", c.url)
	return nil
}

// Connected reports whether a connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close releases the connection and waits for the reader to exit. After
// Close returns the handler is never called again.
func (c *Channel) Close() error {
	// unblocks a reconnect dial holding mu
	c.cancel()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}
	if done != nil {
		<-done
	}
	tool.DefaultLogger.Infof("[PushChannel] closed")
	return err
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if closing {
				return
			}
			tool.DefaultLogger.Warnf("[PushChannel] connection dropped: %v", err)
			_ = conn.Close()
			if c.policy.Enabled && c.reconnect() {
				return
			}
			c.dropped(err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		msg, err := DecodePushMessage(data)
		if err != nil {
			tool.DefaultLogger.Errorf("[PushChannel] %v", err)
			continue
		}
		tool.DefaultLogger.Debugf("[PushChannel] message: status=%s", msg.EffectiveStatus())
		c.handler(msg)
	}
}

// dropped reports a lost connection unless the channel is being closed.
func (c *Channel) dropped(err error) {
	c.mu.Lock()
	closing := c.closed
	c.mu.Unlock()
	if closing || c.onDrop == nil {
		return
	}
	c.onDrop(err)
}

// reconnect redials at most MaxAttempts times, paced by Interval. It reports
// whether a connection is up again.
func (c *Channel) reconnect() bool {
	attempts := c.policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	limiter := rate.NewLimiter(rate.Every(c.policy.Interval), 1)
	for i := 1; i <= attempts; i++ {
		if err := limiter.Wait(c.ctx); err != nil {
			return false
		}
		err := c.Open(c.ctx)
		if err == nil {
			tool.DefaultLogger.Infof("[PushChannel] reconnected after %d attempt(s)", i)
			return true
		}
		if err == ErrChannelClosed {
			return false
		}
		tool.DefaultLogger.Warnf("[PushChannel] reconnect attempt %d/%d failed: %v", i, attempts, err)
	}
	tool.DefaultLogger.Errorf("[PushChannel] giving up after %d reconnect attempts", attempts)
	return false
}

// DecodePushMessage parses one inbound frame.
func DecodePushMessage(data []byte) (types.PushMessage, error) {
	var msg types.PushMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return types.PushMessage{}, &ChannelError{Frame: data, Err: err}
	}
	return msg, nil
}
