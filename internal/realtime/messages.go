package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType discriminates the finite set of wire frames. Field names on
// the wire are camelCase for compatibility with the browser client.
type FrameType string

const (
	// server -> client
	FramePing      FrameType = "PING"
	FrameConnected FrameType = "CONNECTED"
	FramePresence  FrameType = "PRESENCE"
	FrameInsert    FrameType = "INSERT"
	FrameUpdate    FrameType = "UPDATE"
	FrameDelete    FrameType = "DELETE"
	FrameReaction  FrameType = "REACTION"

	// client -> server
	FramePong     FrameType = "PONG"
	FrameActivity FrameType = "ACTIVITY"

	// both directions
	FrameTyping FrameType = "TYPING"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

type TypingUser struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// Frame is the wire envelope for every message exchanged over a
// subscription. Only the fields relevant to a frame's type are set.
type Frame struct {
	Type           FrameType                 `json:"type"`
	Timestamp      int64                     `json:"timestamp,omitempty"`
	ChannelId      string                    `json:"channelId,omitempty"`
	SessionId      string                    `json:"sessionId,omitempty"`
	ThreadId       string                    `json:"threadId,omitempty"`
	OrganizationId string                    `json:"organizationId,omitempty"`
	Notifications  bool                      `json:"notifications,omitempty"`
	Presence       map[string]PresenceStatus `json:"presence,omitempty"`
	Message        json.RawMessage           `json:"message,omitempty"`
	MessageId      string                    `json:"messageId,omitempty"`
	User           *TypingUser               `json:"user,omitempty"`
	IsTyping       bool                      `json:"isTyping,omitempty"`
}

func NewPingFrame(now time.Time) *Frame {
	return &Frame{
		Type:      FramePing,
		Timestamp: now.UnixMilli(),
	}
}

func NewPongFrame(timestamp int64) *Frame {
	return &Frame{
		Type:      FramePong,
		Timestamp: timestamp,
	}
}

func NewConnectedFrame(channelId, sessionId string, notifications bool) *Frame {
	return &Frame{
		Type:          FrameConnected,
		ChannelId:     channelId,
		SessionId:     sessionId,
		Notifications: notifications,
	}
}

func NewPresenceFrame(organizationId string, presence map[string]PresenceStatus) *Frame {
	return &Frame{
		Type:           FramePresence,
		OrganizationId: organizationId,
		Presence:       presence,
	}
}

// parseClientFrame decodes an inbound frame and rejects anything a
// client is not allowed to send. A parse failure never terminates the
// connection; callers drop the frame and keep reading.
func parseClientFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case FramePong, FrameActivity:
		return &frame, nil
	case FrameTyping:
		if frame.User == nil || frame.User.Id == "" {
			return nil, fmt.Errorf("typing frame missing user id")
		}
		return &frame, nil
	case FramePing, FrameConnected, FramePresence, FrameInsert, FrameUpdate, FrameDelete, FrameReaction:
		return nil, fmt.Errorf("unexpected frame type from client: %s", frame.Type)
	default:
		return nil, fmt.Errorf("unknown frame type: %q", frame.Type)
	}
}

func serializeFrame(frame *Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
