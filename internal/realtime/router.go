package realtime

import (
	"slices"

	"github.com/npezzotti/go-teamchat/internal/events"
)

// matchesEvent decides whether a change event reaches a subscription.
//
// Precedence: a direct scope match always wins, regardless of the
// notification flag, so a user actively viewing a channel gets every
// update. Notification subscribers only receive INSERTs within their
// organization, gated by the event's membership hints so private
// channels and DMs never leak to non-members. Everything else drops
// silently: there is no retry or queue, a reconnecting client
// reconciles from the system of record.
func matchesEvent(ev *events.ChangeEvent, sub *Subscription) bool {
	if directScopeMatch(ev, sub) {
		return true
	}

	if !sub.scope.Notifications || ev.Type != events.TypeInsert {
		return false
	}
	if ev.OrganizationId != sub.scope.OrganizationId {
		return false
	}

	if ev.ChannelId != "" {
		if ev.ChannelIsPrivate {
			return slices.Contains(ev.ChannelMemberIds, sub.user.Id)
		}
		return true
	}
	if ev.SessionId != "" {
		return slices.Contains(ev.ParticipantIds, sub.user.Id)
	}

	return false
}

func directScopeMatch(ev *events.ChangeEvent, sub *Subscription) bool {
	if ev.ChannelId != "" && ev.ChannelId == sub.scope.ChannelId {
		return true
	}
	if ev.SessionId != "" && ev.SessionId == sub.scope.SessionId {
		return true
	}
	return false
}

// eventFrame converts a change event into its passthrough wire frame.
// The authorization hints stay behind; direct-scope recipients never
// needed them.
func eventFrame(ev *events.ChangeEvent) *Frame {
	return &Frame{
		Type:           FrameType(ev.Type),
		ChannelId:      ev.ChannelId,
		SessionId:      ev.SessionId,
		OrganizationId: ev.OrganizationId,
		Message:        ev.Message,
		MessageId:      ev.MessageId,
	}
}
