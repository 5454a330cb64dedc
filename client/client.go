package client

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamchat/internal/realtime"
	"golang.org/x/time/rate"
)

// Status is the connection-status state machine surfaced to the UI.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

const (
	DefaultInitialBackoff    = time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	// DefaultActivityInterval is the periodic activity heartbeat; without
	// it a connected client silently degrades to away.
	DefaultActivityInterval = time.Minute
	// activityMinInterval throttles activity signals driven by real user
	// input.
	activityMinInterval = 10 * time.Second
	typingTTL           = 4 * time.Second
)

type Config struct {
	// URL is the full ws endpoint including scope query parameters.
	URL string
	// Header carries the session cookie for the auth middleware.
	Header http.Header
	// User identifies this client in outbound typing frames.
	User realtime.TypingUser

	Logger            *log.Logger
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	ActivityInterval  time.Duration

	OnStatusChange func(Status)
	// OnTypingChange receives the re-rendered indicator label whenever a
	// scope's typing set changes.
	OnTypingChange func(scope, label string)
}

type Client struct {
	cfg    Config
	log    *log.Logger
	dialer *websocket.Dialer

	mu               sync.Mutex
	conn             *websocket.Conn
	connStop         chan struct{}
	status           Status
	attempt          int
	intentionalClose bool

	writeMu sync.Mutex

	stop            chan struct{}
	statusCh        chan Status
	notifier        *Notifier
	typing          *TypingTracker
	activityLimiter *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[teamchat-client] ", log.LstdFlags)
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.ActivityInterval <= 0 {
		cfg.ActivityInterval = DefaultActivityInterval
	}

	c := &Client{
		cfg:             cfg,
		log:             cfg.Logger,
		dialer:          websocket.DefaultDialer,
		status:          StatusIdle,
		stop:            make(chan struct{}),
		notifier:        newNotifier(),
		activityLimiter: rate.NewLimiter(rate.Every(activityMinInterval), 1),
	}

	c.typing = NewTypingTracker(typingTTL, func(scope string) {
		if cfg.OnTypingChange != nil {
			cfg.OnTypingChange(scope, c.typing.Label(scope))
		}
	})

	if cfg.OnStatusChange != nil {
		c.statusCh = make(chan Status, 16)
		go c.statusLoop()
	}

	return c, nil
}

// Connect dials the server once. Reconnection after an unexpected close
// is automatic; a dial failure here is returned to the caller.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.intentionalClose {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.status == StatusConnected || c.status == StatusConnecting || c.status == StatusReconnecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}

	c.typing.Start()
	return nil
}

// Close tears the connection down for good. The intentional-close flag
// is set before the socket is closed so the close handler never
// schedules a reconnect.
func (c *Client) Close() {
	c.mu.Lock()
	if c.intentionalClose {
		c.mu.Unlock()
		return
	}
	c.intentionalClose = true
	conn := c.conn
	c.mu.Unlock()

	close(c.stop)
	if conn != nil {
		conn.Close()
	}

	c.typing.Stop()
	c.notifier.reset()
	c.setStatus(StatusDisconnected)

	c.mu.Lock()
	if c.statusCh != nil {
		close(c.statusCh)
		c.statusCh = nil
	}
	c.mu.Unlock()
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RegisterHandler subscribes application code to every inbound frame
// and returns the unregister function.
func (c *Client) RegisterHandler(h FrameHandler) func() {
	return c.notifier.Register(h)
}

// TypingLabel renders the current typing indicator for a scope.
func (c *Client) TypingLabel(channelId, sessionId, threadId string) string {
	return c.typing.Label(scopeKey(channelId, sessionId, threadId))
}

// Activity reports real user input, throttled so bursts of input
// produce at most one signal per throttle window.
func (c *Client) Activity() error {
	if !c.activityLimiter.Allow() {
		return nil
	}
	return c.sendFrame(&realtime.Frame{Type: realtime.FrameActivity})
}

// Typing announces the local user's typing state for a scope.
func (c *Client) Typing(channelId, sessionId, threadId string, isTyping bool) error {
	return c.sendFrame(&realtime.Frame{
		Type:      realtime.FrameTyping,
		ChannelId: channelId,
		SessionId: sessionId,
		ThreadId:  threadId,
		User:      &c.cfg.User,
		IsTyping:  isTyping,
	})
}

func (c *Client) dial() error {
	conn, _, err := c.dialer.Dial(c.cfg.URL, c.cfg.Header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	connStop := make(chan struct{})

	c.mu.Lock()
	// Close may have run while the dial was in flight; the fresh socket
	// must not be installed after teardown.
	if c.intentionalClose {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("client is closed")
	}
	c.conn = conn
	c.connStop = connStop
	c.attempt = 0
	c.setStatusLocked(StatusConnected)
	c.mu.Unlock()

	go c.readLoop(conn, connStop)
	go c.activityLoop(connStop)

	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, connStop chan struct{}) {
	defer func() {
		conn.Close()
		close(connStop)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var frame realtime.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Println("dropping inbound frame:", err)
			continue
		}

		c.handleFrame(&frame)
	}

	c.mu.Lock()
	intentional := c.intentionalClose
	c.mu.Unlock()
	if intentional {
		return
	}

	go c.reconnect()
}

func (c *Client) handleFrame(frame *realtime.Frame) {
	switch frame.Type {
	case realtime.FramePing:
		if err := c.sendFrame(realtime.NewPongFrame(frame.Timestamp)); err != nil {
			c.log.Println("pong:", err)
		}
	case realtime.FrameTyping:
		c.typing.Apply(frame)
	}

	c.notifier.dispatch(frame)
}

func (c *Client) reconnect() {
	for {
		c.mu.Lock()
		attempt := c.attempt
		c.attempt++
		c.setStatusLocked(StatusReconnecting)
		c.mu.Unlock()

		delay := backoffDelay(attempt, c.cfg.InitialBackoff, c.cfg.MaxBackoff, c.cfg.BackoffMultiplier)
		c.log.Printf("reconnecting in %s (attempt %d)", delay, attempt)

		select {
		case <-time.After(delay):
		case <-c.stop:
			return
		}

		if err := c.dial(); err != nil {
			c.log.Println("reconnect failed:", err)
			continue
		}

		return
	}
}

// activityLoop keeps the server's away timer armed while the tab is
// open and the user present.
func (c *Client) activityLoop(connStop chan struct{}) {
	ticker := time.NewTicker(c.cfg.ActivityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.sendFrame(&realtime.Frame{Type: realtime.FrameActivity}); err != nil {
				c.log.Println("activity:", err)
			}
		case <-connStop:
			return
		case <-c.stop:
			return
		}
	}
}

func (c *Client) sendFrame(frame *realtime.Frame) error {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if conn == nil || status != StatusConnected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(frame)
}

func (c *Client) setStatus(status Status) {
	c.mu.Lock()
	c.setStatusLocked(status)
	c.mu.Unlock()
}

// setStatusLocked requires c.mu; changes are handed to a single
// dispatcher goroutine so the callback observes transitions in order
// and a re-entrant caller cannot deadlock.
func (c *Client) setStatusLocked(status Status) {
	if c.status == status {
		return
	}
	c.status = status

	if c.statusCh != nil {
		select {
		case c.statusCh <- status:
		default:
			// a stalled consumer must not block the client
		}
	}
}

// statusLoop delivers status changes one at a time, in transition
// order. It exits when Close drains and closes the channel.
func (c *Client) statusLoop() {
	for status := range c.statusCh {
		c.cfg.OnStatusChange(status)
	}
}
