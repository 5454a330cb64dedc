package client

import (
	"sync"

	"github.com/npezzotti/go-teamchat/internal/realtime"
)

type FrameHandler func(frame *realtime.Frame)

// Notifier is the single coordinator for frame delivery to application
// code. It is constructed with the client and torn down on Close; there
// is no package-level handler state.
type Notifier struct {
	mu       sync.Mutex
	nextId   int
	handlers map[int]FrameHandler
}

func newNotifier() *Notifier {
	return &Notifier{
		handlers: make(map[int]FrameHandler),
	}
}

// Register adds a handler and returns its unregister function.
func (n *Notifier) Register(h FrameHandler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextId
	n.nextId++
	n.handlers[id] = h

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, id)
	}
}

func (n *Notifier) dispatch(frame *realtime.Frame) {
	n.mu.Lock()
	handlers := make([]FrameHandler, 0, len(n.handlers))
	for _, h := range n.handlers {
		handlers = append(handlers, h)
	}
	n.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

func (n *Notifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = make(map[int]FrameHandler)
}
