package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	// pingInterval bounds how long a silently dead listener connection
	// goes unnoticed when no notifications arrive.
	pingInterval = 90 * time.Second
)

type Handler func(*ChangeEvent)

// Listener is the process-wide consumer of the durable change-event
// feed. It is a supervised singleton: it must never be closed while any
// subscription exists, and lib/pq re-establishes the connection and
// re-issues LISTEN on its own reconnect schedule if the link drops.
type Listener struct {
	log     *log.Logger
	pqln    *pq.Listener
	handler Handler
	stop    chan struct{}
	done    chan struct{}
}

func NewListener(dsn string, logger *log.Logger, handler Handler) (*Listener, error) {
	l := &Listener{
		log:     logger,
		handler: handler,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	l.pqln = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, l.listenerEvent)

	for _, channel := range []string{ChannelEvents, DMEvents} {
		if err := l.pqln.Listen(channel); err != nil {
			l.pqln.Close()
			return nil, fmt.Errorf("listen %s: %w", channel, err)
		}
	}

	return l, nil
}

// listenerEvent logs loudly on disconnect: while the listener is down
// the whole system silently degrades to "no live updates" even though
// the REST APIs keep working.
func (l *Listener) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		l.log.Printf("ERROR: change-event listener disconnected, realtime delivery suspended: %v", err)
	case pq.ListenerEventConnectionAttemptFailed:
		l.log.Printf("ERROR: change-event listener reconnect failed: %v", err)
	case pq.ListenerEventReconnected:
		l.log.Println("change-event listener reconnected, realtime delivery resumed")
	case pq.ListenerEventConnected:
		l.log.Println("change-event listener connected")
	}
}

func (l *Listener) Run() {
	defer close(l.done)

	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	for {
		select {
		case n := <-l.pqln.Notify:
			if n == nil {
				// nil is delivered after a reconnect; notifications in
				// between are lost, clients reconcile via the system of
				// record
				continue
			}

			ev, err := DecodeChangeEvent([]byte(n.Extra))
			if err != nil {
				l.log.Printf("dropping notification on %q: %v", n.Channel, err)
				continue
			}

			l.handler(ev)
		case <-pinger.C:
			if err := l.pqln.Ping(); err != nil {
				l.log.Println("change-event listener ping:", err)
			}
		case <-l.stop:
			return
		}
	}
}

func (l *Listener) Shutdown(ctx context.Context) error {
	close(l.stop)

	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return l.pqln.Close()
}
