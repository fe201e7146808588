package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/audiolog-app/audiolog-backend/internal/models"
)

// MemoryStore is an in-process Store with the same snapshot-subscription
// contract as MongoStore. It backs the test suite and small single-node
// deployments that don't need Mongo/Redis.
type MemoryStore struct {
	mu       sync.Mutex
	logs     []models.Log
	comments map[string][]models.Comment // keyed by log ID
	settings map[string]models.JourneySettings
	subs     map[string][]*memorySub // keyed by scope key
	nextID   int
	writes   map[string]int

	// OnWrite, when set, is invoked at the start of every mutating operation
	// with the operation name, outside the store lock. Tests use it to hold
	// writes open or inject ordering.
	OnWrite func(op string)

	// failErr, when set, makes every mutating operation fail.
	failErr error
}

type memorySub struct {
	scope  Scope
	ch     chan Snapshot
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		comments: make(map[string][]models.Comment),
		settings: make(map[string]models.JourneySettings),
		subs:     make(map[string][]*memorySub),
		writes:   make(map[string]int),
	}
}

// FailWith makes subsequent mutating operations return err. Pass nil to
// restore normal behavior.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Subscribers returns the number of live subscriptions for a scope.
func (s *MemoryStore) Subscribers(scope Scope) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[scope.Key()])
}

// Writes returns how many mutating operations of the given name committed.
func (s *MemoryStore) Writes(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[op]
}

func (s *MemoryStore) beforeWrite(op string) error {
	if s.OnWrite != nil {
		s.OnWrite(op)
	}
	s.mu.Lock()
	err := s.failErr
	s.mu.Unlock()
	return err
}

func (s *MemoryStore) assignID() string {
	s.nextID++
	return fmt.Sprintf("doc-%04d", s.nextID)
}

func (s *MemoryStore) AppendLog(_ context.Context, l models.Log) (string, error) {
	if err := s.beforeWrite("append_log"); err != nil {
		return "", err
	}
	s.mu.Lock()
	l.ID = s.assignID()
	l.CreatedAt = time.Now().UTC()
	if l.Likes == nil {
		l.Likes = []string{}
	}
	s.logs = append(s.logs, l)
	s.writes["append_log"]++
	s.fanOutLocked(LogsScope())
	s.mu.Unlock()
	return l.ID, nil
}

func (s *MemoryStore) Logs(_ context.Context) ([]models.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logsLocked(), nil
}

func (s *MemoryStore) logsLocked() []models.Log {
	out := make([]models.Log, len(s.logs))
	for i, l := range s.logs {
		out[i] = copyLog(l)
	}
	SortLogs(out)
	return out
}

func (s *MemoryStore) AppendComment(_ context.Context, c models.Comment) (string, error) {
	if err := s.beforeWrite("append_comment"); err != nil {
		return "", err
	}
	s.mu.Lock()
	c.ID = s.assignID()
	c.Timestamp = time.Now().UTC()
	s.comments[c.LogID] = append(s.comments[c.LogID], c)
	s.writes["append_comment"]++
	s.fanOutLocked(CommentsScope(c.LogID))
	s.mu.Unlock()
	return c.ID, nil
}

func (s *MemoryStore) Comments(_ context.Context, logID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commentsLocked(logID), nil
}

func (s *MemoryStore) commentsLocked(logID string) []models.Comment {
	out := append([]models.Comment(nil), s.comments[logID]...)
	SortComments(out)
	return out
}

func (s *MemoryStore) ToggleLike(_ context.Context, logID, userID string, liked bool) error {
	if err := s.beforeWrite("toggle_like"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.logs {
		if s.logs[i].ID != logID {
			continue
		}
		likes := s.logs[i].Likes
		if liked {
			if !s.logs[i].LikedBy(userID) {
				s.logs[i].Likes = append(likes, userID)
			}
		} else {
			kept := likes[:0]
			for _, id := range likes {
				if id != userID {
					kept = append(kept, id)
				}
			}
			s.logs[i].Likes = kept
		}
		s.writes["toggle_like"]++
		s.fanOutLocked(LogsScope())
		return nil
	}
	return fmt.Errorf("log %s not found", logID)
}

func (s *MemoryStore) SetInsight(_ context.Context, logID, text string) error {
	if err := s.beforeWrite("set_insight"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.logs {
		if s.logs[i].ID != logID {
			continue
		}
		if s.logs[i].AIInsight != "" {
			return ErrInsightAlreadySet
		}
		s.logs[i].AIInsight = text
		s.writes["set_insight"]++
		s.fanOutLocked(LogsScope())
		return nil
	}
	return fmt.Errorf("log %s not found", logID)
}

func (s *MemoryStore) Settings(_ context.Context, userID string) (*models.JourneySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.settings[userID]; ok {
		out := cur
		return &out, nil
	}
	return nil, nil
}

func (s *MemoryStore) MergeSettings(_ context.Context, userID string, patch models.SettingsPatch) error {
	if err := s.beforeWrite("merge_settings"); err != nil {
		return err
	}
	if patch.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.settings[userID]
	if !ok {
		cur = models.DefaultSettings(userID)
	}
	s.settings[userID] = patch.Apply(cur)
	s.writes["merge_settings"]++
	s.fanOutLocked(SettingsScope(userID))
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, scope Scope) (<-chan Snapshot, CancelFunc, error) {
	sub := &memorySub{scope: scope, ch: make(chan Snapshot, 16)}

	s.mu.Lock()
	key := scope.Key()
	s.subs[key] = append(s.subs[key], sub)
	sub.ch <- s.snapshotLocked(scope)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		kept := s.subs[key][:0]
		for _, other := range s.subs[key] {
			if other != sub {
				kept = append(kept, other)
			}
		}
		s.subs[key] = kept
		close(sub.ch)
	}

	return sub.ch, cancel, nil
}

func (s *MemoryStore) fanOutLocked(scope Scope) {
	subs := s.subs[scope.Key()]
	if len(subs) == 0 {
		return
	}
	snap := s.snapshotLocked(scope)
	for _, sub := range subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			// Slow consumer: drop the oldest pending snapshot, keep latest.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

func (s *MemoryStore) snapshotLocked(scope Scope) Snapshot {
	snap := Snapshot{Scope: scope}
	switch scope.Kind {
	case ScopeLogs:
		snap.Logs = s.logsLocked()
	case ScopeComments:
		snap.Comments = s.commentsLocked(scope.LogID)
	case ScopeSettings:
		if cur, ok := s.settings[scope.UserID]; ok {
			out := cur
			snap.Settings = &out
		}
	}
	return snap
}

func copyLog(l models.Log) models.Log {
	// The like set is always non-nil so it serializes as [] rather than null.
	likes := make([]string, 0, len(l.Likes))
	l.Likes = append(likes, l.Likes...)
	return l
}
