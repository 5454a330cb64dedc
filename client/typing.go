package client

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/npezzotti/go-teamchat/internal/realtime"
)

type typingKey struct {
	scope  string
	userId string
}

// TypingTracker aggregates inbound typing signals per scope (channel or
// session, optionally narrowed to a thread). Entries expire after a
// fixed silence window; typing indicators are soft state, so expiry is
// local-only and never involves the server.
type TypingTracker struct {
	cache    *ttlcache.Cache[typingKey, string]
	onChange func(scope string)

	mu      sync.Mutex
	started bool
}

func NewTypingTracker(ttl time.Duration, onChange func(scope string)) *TypingTracker {
	t := &TypingTracker{
		cache: ttlcache.New[typingKey, string](
			ttlcache.WithTTL[typingKey, string](ttl),
		),
		onChange: onChange,
	}

	t.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[typingKey, string]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		if t.onChange != nil {
			t.onChange(item.Key().scope)
		}
	})

	return t
}

// Start launches the expiry loop; Stop tears it down. The cache's Stop
// blocks until the loop receives it, so Stop must only run after a
// matching Start. Both are idempotent.
func (t *TypingTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}
	t.started = true
	go t.cache.Start()
}

func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	t.started = false
	t.cache.Stop()
}

func (t *TypingTracker) Apply(frame *realtime.Frame) {
	if frame.User == nil || frame.User.Id == "" {
		return
	}

	scope := scopeKey(frame.ChannelId, frame.SessionId, frame.ThreadId)
	if scope == "" {
		return
	}

	key := typingKey{scope: scope, userId: frame.User.Id}
	if frame.IsTyping {
		t.cache.Set(key, frame.User.Name, ttlcache.DefaultTTL)
	} else {
		t.cache.Delete(key)
	}

	if t.onChange != nil {
		t.onChange(scope)
	}
}

// Label renders the indicator text for a scope from its unexpired
// entries.
func (t *TypingTracker) Label(scope string) string {
	var names []string
	for key, item := range t.cache.Items() {
		if key.scope != scope || item.IsExpired() {
			continue
		}
		names = append(names, item.Value())
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return fmt.Sprintf("%s, %s, and %d others are typing...", names[0], names[1], len(names)-2)
	}
}

func scopeKey(channelId, sessionId, threadId string) string {
	scope := channelId
	if scope == "" {
		scope = sessionId
	}
	if scope == "" {
		return ""
	}
	if threadId != "" {
		scope += "#" + threadId
	}
	return scope
}
