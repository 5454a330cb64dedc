package realtime

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/events"
	"github.com/npezzotti/go-teamchat/internal/stats"
)

const (
	MetricActiveSubscriptions = "NumActiveSubscriptions"
	MetricEventsRouted        = "NumEventsRouted"
	MetricReapedConnections   = "NumReapedConnections"
	MetricPresenceBroadcasts  = "NumPresenceBroadcasts"
)

type stopReq struct {
	done chan struct{}
}

// RealtimeServer owns the connection registry and presence tracker and
// runs the single routing loop: change events, registrations and the
// heartbeat cycle all funnel through Run, which keeps delivery for a
// given scope in publish order.
type RealtimeServer struct {
	log      *log.Logger
	stats    stats.StatsProvider
	registry *Registry
	presence *PresenceTracker

	RegisterChan   chan *Subscription
	deRegisterChan chan *Subscription
	EventChan      chan *events.ChangeEvent

	pingInterval time.Duration
	pongTimeout  time.Duration

	stop chan stopReq
	now  func() time.Time
}

func NewRealtimeServer(logger *log.Logger, su stats.StatsProvider, cfg *config.Config) (*RealtimeServer, error) {
	rs := &RealtimeServer{
		log:            logger,
		stats:          su,
		registry:       NewRegistry(),
		presence:       NewPresenceTracker(cfg.AwayTimeout),
		RegisterChan:   make(chan *Subscription),
		deRegisterChan: make(chan *Subscription),
		EventChan:      make(chan *events.ChangeEvent, 256),
		pingInterval:   cfg.PingInterval,
		pongTimeout:    cfg.PongTimeout,
		stop:           make(chan stopReq),
		now:            time.Now,
	}

	for _, metric := range []string{
		MetricActiveSubscriptions,
		MetricEventsRouted,
		MetricReapedConnections,
		MetricPresenceBroadcasts,
	} {
		su.RegisterMetric(metric)
	}

	return rs, nil
}

func (rs *RealtimeServer) Run() {
	ticker := time.NewTicker(rs.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case sub := <-rs.RegisterChan:
			rs.log.Printf("registering subscription %s for user %q", sub.id, sub.user.Username)
			rs.register(sub)
		case sub := <-rs.deRegisterChan:
			rs.log.Printf("deregistering subscription %s for user %q", sub.id, sub.user.Username)
			rs.deregister(sub)
		case ev := <-rs.EventChan:
			rs.routeEvent(ev)
		case <-ticker.C:
			now := rs.now()
			rs.reapPass(now)
			rs.pingPass(now)
		case req := <-rs.stop:
			rs.log.Println("closing all subscriptions")
			for _, sub := range rs.registry.All() {
				rs.deregister(sub)
			}
			close(req.done)
			return
		}
	}
}

func (rs *RealtimeServer) Shutdown(ctx context.Context) error {
	rs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case rs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterSubscription hands a handshake-authorized subscription to the
// routing loop.
func (rs *RealtimeServer) RegisterSubscription(sub *Subscription) {
	rs.RegisterChan <- sub
}

// HandleChangeEvent is the entrypoint wired to the change-event
// listener. The buffered channel preserves publish order; a single
// consumer drains it on the routing loop.
func (rs *RealtimeServer) HandleChangeEvent(ev *events.ChangeEvent) {
	rs.EventChan <- ev
}

// PresenceSnapshot is the synchronous in-memory read used by the REST
// layer to answer "who is online".
func (rs *RealtimeServer) PresenceSnapshot(organizationId string) map[string]PresenceStatus {
	return rs.presence.Snapshot(organizationId)
}

func (rs *RealtimeServer) register(sub *Subscription) {
	rs.registry.Add(sub)
	rs.stats.Incr(MetricActiveSubscriptions)

	changed := rs.presence.Connect(sub.scope.OrganizationId, sub.user.Id)

	sub.queueFrame(NewConnectedFrame(sub.scope.ChannelId, sub.scope.SessionId, sub.scope.Notifications))

	if changed {
		rs.broadcastPresence(sub.scope.OrganizationId)
	}
}

// deregister is idempotent: the read pump, the heartbeat reaper and
// shutdown can all race to remove the same subscription.
func (rs *RealtimeServer) deregister(sub *Subscription) {
	if !rs.registry.Remove(sub) {
		return
	}

	rs.stats.Decr(MetricActiveSubscriptions)
	sub.closeConn()

	if rs.presence.Disconnect(sub.scope.OrganizationId, sub.user.Id) {
		rs.broadcastPresence(sub.scope.OrganizationId)
	}
}

func (rs *RealtimeServer) routeEvent(ev *events.ChangeEvent) {
	frame := eventFrame(ev)

	matched := rs.registry.Match(func(sub *Subscription) bool {
		return sub.sendable() && matchesEvent(ev, sub)
	})
	for _, sub := range matched {
		sub.queueFrame(frame)
	}

	rs.stats.Incr(MetricEventsRouted)
}

// reapPass removes subscriptions whose socket is gone or whose peer
// stopped answering pings, then presence reflects the loss.
func (rs *RealtimeServer) reapPass(now time.Time) {
	for _, sub := range rs.registry.All() {
		alive, lastPong := sub.liveness()
		if sub.sendable() && (alive || now.Sub(lastPong) <= rs.pongTimeout) {
			continue
		}

		rs.log.Printf("reaping dead subscription %s (user %q)", sub.id, sub.user.Username)
		rs.stats.Incr(MetricReapedConnections)
		rs.deregister(sub)
	}
}

func (rs *RealtimeServer) pingPass(now time.Time) {
	for _, sub := range rs.registry.All() {
		sub.markAwaitingPong()
		sub.queueFrame(NewPingFrame(now))
	}
}

// recordActivity distinguishes "tab open" from "user present": only an
// explicit activity signal rearms the away timer, and only an
// away-to-online transition is worth telling peers about.
func (rs *RealtimeServer) recordActivity(sub *Subscription) {
	if rs.presence.RecordActivity(sub.scope.OrganizationId, sub.user.Id) {
		rs.broadcastPresence(sub.scope.OrganizationId)
	}
}

// handleTyping validates an inbound typing frame against the sender's
// own scope and rebroadcasts it to the other direct-scope
// subscriptions, never back to the sender.
func (rs *RealtimeServer) handleTyping(sub *Subscription, frame *Frame) {
	scopeOk := (frame.ChannelId != "" && frame.ChannelId == sub.scope.ChannelId) ||
		(frame.SessionId != "" && frame.SessionId == sub.scope.SessionId)
	if !scopeOk {
		rs.log.Printf("dropping typing frame outside sender scope from subscription %s", sub.id)
		return
	}

	// typing is user activity
	rs.recordActivity(sub)

	matched := rs.registry.Match(func(other *Subscription) bool {
		if other == sub || !other.sendable() {
			return false
		}
		if frame.ChannelId != "" {
			return other.scope.ChannelId == frame.ChannelId
		}
		return other.scope.SessionId == frame.SessionId
	})
	for _, other := range matched {
		other.queueFrame(frame)
	}
}

func (rs *RealtimeServer) broadcastPresence(organizationId string) {
	frame := NewPresenceFrame(organizationId, rs.presence.Snapshot(organizationId))

	matched := rs.registry.Match(func(sub *Subscription) bool {
		return sub.sendable() && sub.scope.OrganizationId == organizationId
	})
	for _, sub := range matched {
		sub.queueFrame(frame)
	}

	rs.stats.Incr(MetricPresenceBroadcasts)
}
