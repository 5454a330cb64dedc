package events

import (
	"encoding/json"
	"fmt"
)

// Notification channels published by the system of record. One fan-out
// topic per entity family.
const (
	ChannelEvents = "channel_events"
	DMEvents      = "dm_events"
)

const (
	TypeInsert   = "INSERT"
	TypeUpdate   = "UPDATE"
	TypeDelete   = "DELETE"
	TypeReaction = "REACTION"
)

// ChangeEvent is the transient message emitted once per write
// transaction. It is consumed by every matching subscription and then
// discarded; there is no replay and no ordering across scopes beyond
// publish order. The authorization hints are consulted only when
// routing to notification subscribers and are otherwise ignored.
type ChangeEvent struct {
	Type           string          `json:"type"`
	ChannelId      string          `json:"channelId,omitempty"`
	SessionId      string          `json:"sessionId,omitempty"`
	OrganizationId string          `json:"organizationId"`
	Message        json.RawMessage `json:"message,omitempty"`
	MessageId      string          `json:"messageId,omitempty"`

	// authorization hints
	ChannelIsPrivate bool     `json:"channelIsPrivate,omitempty"`
	ChannelMemberIds []string `json:"channelMemberIds,omitempty"`
	ParticipantIds   []string `json:"participantIds,omitempty"`
}

func DecodeChangeEvent(payload []byte) (*ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode change event: %w", err)
	}

	switch ev.Type {
	case TypeInsert, TypeUpdate, TypeDelete, TypeReaction:
	default:
		return nil, fmt.Errorf("unknown change event type: %q", ev.Type)
	}

	if ev.OrganizationId == "" {
		return nil, fmt.Errorf("change event missing organization id")
	}
	if ev.ChannelId == "" && ev.SessionId == "" {
		return nil, fmt.Errorf("change event carries neither channel nor session")
	}

	return &ev, nil
}
