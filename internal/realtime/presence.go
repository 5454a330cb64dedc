package realtime

import (
	"sync"
	"time"
)

type presenceEntry struct {
	connections  int
	lastActivity time.Time
}

// PresenceTracker maintains the per-organization view of user activity.
// Status is derived, never stored: a user with no connections is absent
// from the snapshot (offline to peers), a connected user with no
// activity signal within awayTimeout is away, otherwise online.
type PresenceTracker struct {
	mu          sync.Mutex
	orgs        map[string]map[string]*presenceEntry
	awayTimeout time.Duration
	now         func() time.Time
}

func NewPresenceTracker(awayTimeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		orgs:        make(map[string]map[string]*presenceEntry),
		awayTimeout: awayTimeout,
		now:         time.Now,
	}
}

// Connect records a new subscription for the user and reports whether
// the organization's online/offline view changed, which is true only
// for the user's first connection.
func (pt *PresenceTracker) Connect(organizationId, userId string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	users, ok := pt.orgs[organizationId]
	if !ok {
		users = make(map[string]*presenceEntry)
		pt.orgs[organizationId] = users
	}

	entry, ok := users[userId]
	if !ok {
		users[userId] = &presenceEntry{
			connections:  1,
			lastActivity: pt.now(),
		}
		return true
	}

	entry.connections++
	return false
}

// Disconnect drops one connection for the user, never going below zero,
// and reports whether the user's last connection just closed.
func (pt *PresenceTracker) Disconnect(organizationId, userId string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	users, ok := pt.orgs[organizationId]
	if !ok {
		return false
	}

	entry, ok := users[userId]
	if !ok {
		return false
	}

	entry.connections--
	if entry.connections > 0 {
		return false
	}

	delete(users, userId)
	if len(users) == 0 {
		delete(pt.orgs, organizationId)
	}
	return true
}

// RecordActivity refreshes the user's activity timestamp and reports
// whether the refresh pulled them back from away. Online-to-online
// refreshes return false, which bounds presence broadcasts to real
// state transitions.
func (pt *PresenceTracker) RecordActivity(organizationId, userId string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	users, ok := pt.orgs[organizationId]
	if !ok {
		return false
	}

	entry, ok := users[userId]
	if !ok {
		return false
	}

	wasAway := pt.status(entry) == StatusAway
	entry.lastActivity = pt.now()
	return wasAway
}

// Snapshot computes the organization's presence view at call time.
// Users with no connections do not appear; peers read absence as
// offline. Staleness is bounded by the away timeout only.
func (pt *PresenceTracker) Snapshot(organizationId string) map[string]PresenceStatus {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	snapshot := make(map[string]PresenceStatus)
	for userId, entry := range pt.orgs[organizationId] {
		snapshot[userId] = pt.status(entry)
	}
	return snapshot
}

// ConnectionCount reports the number of live subscriptions for a user.
func (pt *PresenceTracker) ConnectionCount(organizationId, userId string) int {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	entry, ok := pt.orgs[organizationId][userId]
	if !ok {
		return 0
	}
	return entry.connections
}

// status derives the user's state; callers must hold the lock.
func (pt *PresenceTracker) status(entry *presenceEntry) PresenceStatus {
	if entry.connections == 0 {
		return StatusOffline
	}
	if pt.now().Sub(entry.lastActivity) > pt.awayTimeout {
		return StatusAway
	}
	return StatusOnline
}
