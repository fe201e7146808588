// Package store is the document store behind the feed: a flat public logs
// collection, per-log comment collections and one settings document per user.
// It supports point reads, live subscriptions, atomic merge-updates and
// append-only collection writes. Subscriptions deliver full materialized
// snapshots of a scope, never diffs.
package store

import (
	"context"
	"errors"

	"github.com/audiolog-app/audiolog-backend/internal/models"
)

// ScopeKind identifies which collection a subscription watches.
type ScopeKind string

const (
	ScopeLogs     ScopeKind = "logs"
	ScopeComments ScopeKind = "comments"
	ScopeSettings ScopeKind = "settings"
)

// Scope is a logical subscription target: all public logs, the comments of
// one log, or the settings of one user.
type Scope struct {
	Kind   ScopeKind
	LogID  string // set for ScopeComments
	UserID string // set for ScopeSettings
}

func LogsScope() Scope                  { return Scope{Kind: ScopeLogs} }
func CommentsScope(logID string) Scope  { return Scope{Kind: ScopeComments, LogID: logID} }
func SettingsScope(userID string) Scope { return Scope{Kind: ScopeSettings, UserID: userID} }

// Key returns a stable string identity for the scope, used for channel names
// and subscription dedup.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeComments:
		return "comments:" + s.LogID
	case ScopeSettings:
		return "settings:" + s.UserID
	default:
		return "logs"
	}
}

// Snapshot is the full current state of one scope. Exactly one of the payload
// fields is populated, matching Scope.Kind.
type Snapshot struct {
	Scope    Scope
	Logs     []models.Log
	Comments []models.Comment
	Settings *models.JourneySettings
}

// CancelFunc tears down a live subscription. It is synchronous: after it
// returns, no further snapshots are delivered on the channel.
type CancelFunc func()

// ErrInsightAlreadySet is returned by SetInsight when the log already carries
// an insight; the field is write-once.
var ErrInsightAlreadySet = errors.New("insight already set for log")

// Store is the document-store capability the sync engine is built on.
type Store interface {
	// AppendLog persists a new log, assigning its ID and creation timestamp.
	AppendLog(ctx context.Context, l models.Log) (string, error)
	// Logs returns all public logs, newest first.
	Logs(ctx context.Context) ([]models.Log, error)

	// AppendComment persists a new comment under a log, assigning its ID and
	// timestamp.
	AppendComment(ctx context.Context, c models.Comment) (string, error)
	// Comments returns a log's comments, oldest first, ties broken by ID.
	Comments(ctx context.Context, logID string) ([]models.Comment, error)

	// ToggleLike atomically adds (liked=true) or removes the user from the
	// log's like set. Set semantics: adding twice is a no-op.
	ToggleLike(ctx context.Context, logID, userID string, liked bool) error
	// SetInsight writes the AI insight for a log exactly once.
	SetInsight(ctx context.Context, logID, text string) error

	// Settings returns a user's settings document, or nil if none exists yet.
	Settings(ctx context.Context, userID string) (*models.JourneySettings, error)
	// MergeSettings applies a field-level merge to the user's settings
	// document, creating it if absent. Never replaces the whole document.
	MergeSettings(ctx context.Context, userID string, patch models.SettingsPatch) error

	// Subscribe opens a live feed of full snapshots for the scope. The current
	// snapshot is delivered first, then one after every observed change.
	Subscribe(ctx context.Context, scope Scope) (<-chan Snapshot, CancelFunc, error)
}
