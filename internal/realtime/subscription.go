package realtime

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamchat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// SubscriptionScope is the authorization-checked scope a connection was
// admitted with during the handshake.
type SubscriptionScope struct {
	ChannelId      string
	SessionId      string
	OrganizationId string
	Notifications  bool
}

// Subscription is the server-side state for one physical connection.
// A user may hold many at once (multiple tabs or devices).
type Subscription struct {
	id          string
	conn        *websocket.Conn
	server      *RealtimeServer
	log         *log.Logger
	user        types.User
	scope       SubscriptionScope
	connectedAt time.Time

	// liveness decouples "socket still open" from "peer responsive":
	// intermediaries can hold a socket open after the peer vanishes.
	livenessMu sync.Mutex
	alive      bool
	lastPong   time.Time

	send      chan *Frame
	stop      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewSubscription(user types.User, conn *websocket.Conn, rs *RealtimeServer, l *log.Logger, scope SubscriptionScope) *Subscription {
	return &Subscription{
		id:          shortid.MustGenerate(),
		conn:        conn,
		server:      rs,
		log:         l,
		user:        user,
		scope:       scope,
		connectedAt: Now(),
		alive:       true,
		lastPong:    Now(),
		send:        make(chan *Frame, sendQueueSize),
		stop:        make(chan struct{}),
	}
}

func (s *Subscription) Id() string { return s.id }

func (s *Subscription) User() types.User { return s.user }

func (s *Subscription) Scope() SubscriptionScope { return s.scope }

func (s *Subscription) Write() {
	defer func() {
		s.closeConn()
		s.log.Printf("write exiting for subscription %s", s.id)
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := serializeFrame(frame)
			if err != nil {
				s.log.Println("failed to serialize frame:", err)
				continue
			}

			if !s.writeMessage(bytes) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Subscription) Read() {
	defer func() {
		s.closeConn()
		s.server.deRegisterChan <- s
		s.log.Printf("read exiting for subscription %s", s.id)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		frame, err := parseClientFrame(raw)
		if err != nil {
			// a single bad frame must not terminate the session
			s.log.Println("dropping inbound frame:", err)
			continue
		}

		switch frame.Type {
		case FramePong:
			s.markAlive(Now())
		case FrameActivity:
			s.server.recordActivity(s)
		case FrameTyping:
			s.server.handleTyping(s, frame)
		}
	}
}

// queueFrame enqueues without blocking. A full queue or dead peer is a
// transient send failure: ignored here, detected by the next heartbeat
// cycle.
func (s *Subscription) queueFrame(frame *Frame) bool {
	select {
	case s.send <- frame:
	default:
		s.log.Printf("send queue full for subscription %s, dropping frame", s.id)
		return false
	}

	return true
}

func (s *Subscription) writeMessage(msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// sendable is the single predicate consulted everywhere a frame is
// pushed, so dead-connection pruning lives in one place.
func (s *Subscription) sendable() bool {
	return !s.closed.Load()
}

func (s *Subscription) markAlive(now time.Time) {
	s.livenessMu.Lock()
	defer s.livenessMu.Unlock()
	s.alive = true
	s.lastPong = now
}

func (s *Subscription) markAwaitingPong() {
	s.livenessMu.Lock()
	defer s.livenessMu.Unlock()
	s.alive = false
}

func (s *Subscription) liveness() (bool, time.Time) {
	s.livenessMu.Lock()
	defer s.livenessMu.Unlock()
	return s.alive, s.lastPong
}

func (s *Subscription) closeConn() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}
