package client

import (
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-teamchat/internal/realtime"
	"github.com/stretchr/testify/assert"
)

func typingFrame(channelId, userId, name string, isTyping bool) *realtime.Frame {
	return &realtime.Frame{
		Type:      realtime.FrameTyping,
		ChannelId: channelId,
		User:      &realtime.TypingUser{Id: userId, Name: name},
		IsTyping:  isTyping,
	}
}

func TestTypingTracker_Label(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)

	assert.Empty(t, tracker.Label("c1"), "expected empty label with no typists")

	tracker.Apply(typingFrame("c1", "u1", "Ann", true))
	assert.Equal(t, "Ann is typing...", tracker.Label("c1"), "expected single-typist label")

	tracker.Apply(typingFrame("c1", "u2", "Bob", true))
	assert.Equal(t, "Ann and Bob are typing...", tracker.Label("c1"), "expected two-typist label")

	tracker.Apply(typingFrame("c1", "u3", "Cal", true))
	tracker.Apply(typingFrame("c1", "u4", "Dee", true))
	assert.Equal(t, "Ann, Bob, and 2 others are typing...", tracker.Label("c1"),
		"expected overflow label for more than two typists")

	// a stop signal removes the typist immediately
	tracker.Apply(typingFrame("c1", "u3", "Cal", false))
	tracker.Apply(typingFrame("c1", "u4", "Dee", false))
	assert.Equal(t, "Ann and Bob are typing...", tracker.Label("c1"),
		"expected label to shrink after stop signals")

	// scopes are independent
	assert.Empty(t, tracker.Label("c2"), "expected other scopes to be unaffected")
}

func TestTypingTracker_expiry(t *testing.T) {
	var mu sync.Mutex
	var changedScopes []string

	tracker := NewTypingTracker(50*time.Millisecond, func(scope string) {
		mu.Lock()
		defer mu.Unlock()
		changedScopes = append(changedScopes, scope)
	})
	tracker.Start()
	defer tracker.Stop()

	tracker.Apply(typingFrame("c1", "u1", "Ann", true))
	assert.Equal(t, "Ann is typing...", tracker.Label("c1"), "expected typist before expiry")

	assert.Eventually(t, func() bool {
		return tracker.Label("c1") == ""
	}, time.Second, 10*time.Millisecond, "expected typist to expire after the silence window")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changedScopes, "c1", "expected a change notification for the expired scope")
}

func TestTypingTracker_StartStop(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)

	// Stop before Start must not block
	done := make(chan struct{})
	go func() {
		tracker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop without start did not return")
	}

	// both are idempotent
	tracker.Start()
	tracker.Start()
	tracker.Stop()
	tracker.Stop()
}

func TestTypingTracker_Apply_ignoresInvalidFrames(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)

	// no user
	tracker.Apply(&realtime.Frame{Type: realtime.FrameTyping, ChannelId: "c1", IsTyping: true})
	// no scope
	tracker.Apply(&realtime.Frame{
		Type:     realtime.FrameTyping,
		User:     &realtime.TypingUser{Id: "u1", Name: "Ann"},
		IsTyping: true,
	})

	assert.Empty(t, tracker.Label("c1"), "expected invalid frames to be ignored")
}

func Test_scopeKey(t *testing.T) {
	tcases := []struct {
		name      string
		channelId string
		sessionId string
		threadId  string
		want      string
	}{
		{name: "channel", channelId: "c1", want: "c1"},
		{name: "session", sessionId: "d1", want: "d1"},
		{name: "channel thread", channelId: "c1", threadId: "t1", want: "c1#t1"},
		{name: "session thread", sessionId: "d1", threadId: "t1", want: "d1#t1"},
		{name: "channel wins over session", channelId: "c1", sessionId: "d1", want: "c1"},
		{name: "no scope", threadId: "t1", want: ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scopeKey(tc.channelId, tc.sessionId, tc.threadId),
				"expected scope key to match")
		})
	}
}
