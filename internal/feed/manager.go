// Package feed is the client-side sync engine: it keeps local mirrors of the
// public log feed, per-log comment threads and the user's settings document
// current via live store subscriptions, and applies optimistic mutations that
// reconcile against server-confirmed snapshots.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/store"
)

// Sink receives every snapshot applied to a mirror, including locally
// generated ones after optimistic mutations. The view layer attaches here.
type Sink func(store.Snapshot)

// Manager owns the local mirrors and holds at most one live subscription per
// distinct scope. Mirrors are replaced wholesale from each snapshot, never
// patched from diffs.
type Manager struct {
	store store.Store

	mu       sync.Mutex
	subs     map[string]*subscription
	logs     []models.Log
	comments map[string][]models.Comment
	settings *models.JourneySettings
	sink     Sink
}

type subscription struct {
	scope  store.Scope
	cancel store.CancelFunc
	closed bool
}

func NewManager(s store.Store) *Manager {
	return &Manager{
		store:    s,
		subs:     make(map[string]*subscription),
		comments: make(map[string][]models.Comment),
	}
}

// SetSink registers the snapshot consumer. Must be called before Subscribe.
func (m *Manager) SetSink(sink Sink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// Subscribe opens a live feed for the scope. Subscribing to an already-open
// scope is a no-op that reuses the existing feed.
func (m *Manager) Subscribe(ctx context.Context, scope store.Scope) error {
	m.mu.Lock()
	if _, ok := m.subs[scope.Key()]; ok {
		m.mu.Unlock()
		return nil
	}
	sub := &subscription{scope: scope}
	m.subs[scope.Key()] = sub
	m.mu.Unlock()

	snaps, cancel, err := m.store.Subscribe(ctx, scope)
	if err != nil {
		m.mu.Lock()
		delete(m.subs, scope.Key())
		m.mu.Unlock()
		return fmt.Errorf("%w: subscribe %s: %v", ErrRemoteRead, scope.Key(), err)
	}

	m.mu.Lock()
	if sub.closed {
		// Unsubscribed while the remote setup was in flight.
		m.mu.Unlock()
		cancel()
		return nil
	}
	sub.cancel = cancel
	m.mu.Unlock()

	go func() {
		for snap := range snaps {
			m.apply(sub, snap)
		}
	}()

	return nil
}

// Unsubscribe tears down the scope's live feed and discards its mirror. It is
// synchronous: once it returns, late snapshot deliveries for the scope are
// dropped.
func (m *Manager) Unsubscribe(scope store.Scope) {
	m.mu.Lock()
	sub, ok := m.subs[scope.Key()]
	if !ok {
		m.mu.Unlock()
		return
	}
	sub.closed = true
	delete(m.subs, scope.Key())
	m.discardMirrorLocked(scope)
	cancel := sub.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close tears down every live subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	var cancels []store.CancelFunc
	for key, sub := range m.subs {
		sub.closed = true
		if sub.cancel != nil {
			cancels = append(cancels, sub.cancel)
		}
		delete(m.subs, key)
	}
	m.logs = nil
	m.comments = make(map[string][]models.Comment)
	m.settings = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// apply replaces the mirror for the snapshot's scope. Deliveries racing a
// cancellation are dropped: a closed subscription never mutates state.
func (m *Manager) apply(sub *subscription, snap store.Snapshot) {
	m.mu.Lock()
	if sub.closed {
		m.mu.Unlock()
		return
	}
	m.applySnapshotLocked(snap)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(snap)
	}
}

func (m *Manager) applySnapshotLocked(snap store.Snapshot) {
	switch snap.Scope.Kind {
	case store.ScopeLogs:
		logs := append([]models.Log(nil), snap.Logs...)
		store.SortLogs(logs)
		m.logs = logs
	case store.ScopeComments:
		comments := append([]models.Comment(nil), snap.Comments...)
		store.SortComments(comments)
		m.comments[snap.Scope.LogID] = comments
	case store.ScopeSettings:
		if snap.Settings != nil {
			s := *snap.Settings
			m.settings = &s
		}
	}
}

func (m *Manager) discardMirrorLocked(scope store.Scope) {
	switch scope.Kind {
	case store.ScopeLogs:
		m.logs = nil
	case store.ScopeComments:
		delete(m.comments, scope.LogID)
	case store.ScopeSettings:
		m.settings = nil
	}
}

// Logs returns a copy of the public log mirror, newest first.
func (m *Manager) Logs() []models.Log {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logsCopyLocked()
}

// Log returns the mirrored log with the given ID, if present.
func (m *Manager) Log(logID string) (models.Log, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.ID == logID {
			l.Likes = copyLikes(l.Likes)
			return l, true
		}
	}
	return models.Log{}, false
}

// Comments returns a copy of the mirrored comment thread for a log.
func (m *Manager) Comments(logID string) []models.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Comment(nil), m.comments[logID]...)
}

// Settings returns the mirrored settings, or the defaults for userID when no
// document has been observed yet.
func (m *Manager) Settings(userID string) models.JourneySettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings != nil {
		return *m.settings
	}
	return models.DefaultSettings(userID)
}

// applyLocalLike optimistically toggles a like in the logs mirror and pushes
// the resulting snapshot to the sink. The next authoritative snapshot
// overwrites it either way.
func (m *Manager) applyLocalLike(logID, userID string, liked bool) {
	m.mu.Lock()
	for i := range m.logs {
		if m.logs[i].ID != logID {
			continue
		}
		likes := copyLikes(m.logs[i].Likes)
		if liked {
			if !m.logs[i].LikedBy(userID) {
				likes = append(likes, userID)
			}
		} else {
			kept := likes[:0]
			for _, id := range likes {
				if id != userID {
					kept = append(kept, id)
				}
			}
			likes = kept
		}
		m.logs[i].Likes = likes
		break
	}
	snap := store.Snapshot{Scope: store.LogsScope(), Logs: m.logsCopyLocked()}
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(snap)
	}
}

// applyLocalSettings optimistically merges a patch into the settings mirror
// and returns the previous state for a possible rollback.
func (m *Manager) applyLocalSettings(userID string, patch models.SettingsPatch) models.JourneySettings {
	m.mu.Lock()
	prev := models.DefaultSettings(userID)
	if m.settings != nil {
		prev = *m.settings
	}
	next := patch.Apply(prev)
	m.settings = &next
	snap := store.Snapshot{Scope: store.SettingsScope(userID), Settings: &next}
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(snap)
	}
	return prev
}

// restoreSettings reverts the settings mirror to a captured pre-update state.
func (m *Manager) restoreSettings(userID string, prev models.JourneySettings) {
	m.mu.Lock()
	m.settings = &prev
	snap := store.Snapshot{Scope: store.SettingsScope(userID), Settings: &prev}
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(snap)
	}
}

func (m *Manager) logsCopyLocked() []models.Log {
	out := make([]models.Log, len(m.logs))
	for i, l := range m.logs {
		l.Likes = copyLikes(l.Likes)
		out[i] = l
	}
	return out
}

// copyLikes copies a like set, keeping empty sets non-nil so they serialize
// as [] rather than null.
func copyLikes(likes []string) []string {
	out := make([]string, 0, len(likes))
	return append(out, likes...)
}
