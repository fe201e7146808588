package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/audiolog-app/audiolog-backend/internal/models"
)

func TestMemoryStoreAppendLog(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.AppendLog(ctx, models.Log{UserID: "u1", Transcript: "first"})
	if err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned ID")
	}

	logs, err := s.Logs(ctx)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].ID != id {
		t.Errorf("expected ID %s, got %s", id, logs[0].ID)
	}
	if logs[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}
	if logs[0].Likes == nil {
		t.Error("expected empty like set, not nil")
	}
}

func TestMemoryStoreLogsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.AppendLog(ctx, models.Log{UserID: "u1", Transcript: "old"})
	time.Sleep(2 * time.Millisecond)
	second, _ := s.AppendLog(ctx, models.Log{UserID: "u1", Transcript: "new"})

	logs, _ := s.Logs(ctx)
	if logs[0].ID != second || logs[1].ID != first {
		t.Errorf("expected newest first, got order %s, %s", logs[0].ID, logs[1].ID)
	}
}

func TestMemoryStoreToggleLikeSetSemantics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, _ := s.AppendLog(ctx, models.Log{UserID: "u1"})

	// Liking twice must not duplicate.
	if err := s.ToggleLike(ctx, id, "u2", true); err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if err := s.ToggleLike(ctx, id, "u2", true); err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}

	logs, _ := s.Logs(ctx)
	if len(logs[0].Likes) != 1 {
		t.Fatalf("expected 1 like after double add, got %d", len(logs[0].Likes))
	}

	// Unliking removes membership; unliking again is a no-op.
	if err := s.ToggleLike(ctx, id, "u2", false); err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if err := s.ToggleLike(ctx, id, "u2", false); err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}

	logs, _ = s.Logs(ctx)
	if len(logs[0].Likes) != 0 {
		t.Fatalf("expected empty like set, got %v", logs[0].Likes)
	}
}

func TestMemoryStoreToggleLikeUnknownLog(t *testing.T) {
	s := NewMemoryStore()
	if err := s.ToggleLike(context.Background(), "missing", "u1", true); err == nil {
		t.Fatal("expected error for unknown log")
	}
}

func TestMemoryStoreSetInsightWriteOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, _ := s.AppendLog(ctx, models.Log{UserID: "u1"})

	if err := s.SetInsight(ctx, id, "keep going"); err != nil {
		t.Fatalf("SetInsight failed: %v", err)
	}
	err := s.SetInsight(ctx, id, "overwrite attempt")
	if !errors.Is(err, ErrInsightAlreadySet) {
		t.Fatalf("expected ErrInsightAlreadySet, got %v", err)
	}

	logs, _ := s.Logs(ctx)
	if logs[0].AIInsight != "keep going" {
		t.Errorf("insight was overwritten: %q", logs[0].AIInsight)
	}
}

func TestMemoryStoreMergeSettingsFieldLevel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.MergeSettings(ctx, "u1", models.SettingsPatch{Title: models.StringPtr("Night Owl")}); err != nil {
		t.Fatalf("MergeSettings failed: %v", err)
	}
	// Second merge touches only the category; the title must survive.
	if err := s.MergeSettings(ctx, "u1", models.SettingsPatch{Category: models.StringPtr("coding")}); err != nil {
		t.Fatalf("MergeSettings failed: %v", err)
	}

	got, err := s.Settings(ctx, "u1")
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if got.Title != "Night Owl" {
		t.Errorf("title lost by merge: %q", got.Title)
	}
	if got.Category != "coding" {
		t.Errorf("category not merged: %q", got.Category)
	}
	if got.Description != "Sequential Documenting" {
		t.Errorf("defaults not seeded: %q", got.Description)
	}
}

func TestMemoryStoreSettingsAbsent(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Settings(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent settings, got %+v", got)
	}
}

func TestMemoryStoreSubscribeDeliversInitialSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.AppendLog(ctx, models.Log{UserID: "u1", Transcript: "existing"})

	snaps, cancel, err := s.Subscribe(ctx, LogsScope())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	snap := <-snaps
	if len(snap.Logs) != 1 {
		t.Fatalf("expected initial snapshot with 1 log, got %d", len(snap.Logs))
	}
}

func TestMemoryStoreSubscribeDeliversFullSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snaps, cancel, err := s.Subscribe(ctx, LogsScope())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()
	<-snaps // initial empty snapshot

	s.AppendLog(ctx, models.Log{UserID: "u1", Transcript: "a"})
	snap := <-snaps
	if len(snap.Logs) != 1 {
		t.Fatalf("expected full snapshot with 1 log, got %d", len(snap.Logs))
	}

	s.AppendLog(ctx, models.Log{UserID: "u1", Transcript: "b"})
	snap = <-snaps
	if len(snap.Logs) != 2 {
		t.Fatalf("expected full snapshot with 2 logs, got %d", len(snap.Logs))
	}
}

func TestMemoryStoreCancelStopsDelivery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snaps, cancel, err := s.Subscribe(ctx, LogsScope())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	<-snaps

	cancel()
	cancel() // idempotent

	if n := s.Subscribers(LogsScope()); n != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", n)
	}

	// Channel is closed; no further deliveries.
	s.AppendLog(ctx, models.Log{UserID: "u1"})
	if _, ok := <-snaps; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestMemoryStoreCommentScopesAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	logA, _ := s.AppendLog(ctx, models.Log{UserID: "u1"})
	logB, _ := s.AppendLog(ctx, models.Log{UserID: "u1"})

	snapsA, cancelA, _ := s.Subscribe(ctx, CommentsScope(logA))
	defer cancelA()
	<-snapsA

	s.AppendComment(ctx, models.Comment{LogID: logB, UserID: "u2", Text: "elsewhere"})

	select {
	case snap := <-snapsA:
		t.Fatalf("comment on another log leaked into scope: %+v", snap)
	case <-time.After(20 * time.Millisecond):
	}

	s.AppendComment(ctx, models.Comment{LogID: logA, UserID: "u2", Text: "here"})
	snap := <-snapsA
	if len(snap.Comments) != 1 || snap.Comments[0].Text != "here" {
		t.Fatalf("expected own-scope comment, got %+v", snap.Comments)
	}
}

func TestSortLogsZeroTimestampOldest(t *testing.T) {
	logs := []models.Log{
		{ID: "b", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "pending"}, // zero CreatedAt: server timestamp not yet resolved
		{ID: "a", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	SortLogs(logs)

	if logs[len(logs)-1].ID != "pending" {
		t.Errorf("zero-timestamp log should sort oldest, got order %v", []string{logs[0].ID, logs[1].ID, logs[2].ID})
	}
	if logs[0].ID != "b" {
		t.Errorf("expected newest first, got %s", logs[0].ID)
	}
}

func TestSortCommentsOldestFirstStableTies(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	comments := []models.Comment{
		{ID: "c2", Timestamp: at},
		{ID: "c1", Timestamp: at},
		{ID: "c0", Timestamp: at.Add(-time.Hour)},
	}
	SortComments(comments)

	if comments[0].ID != "c0" {
		t.Errorf("expected oldest first, got %s", comments[0].ID)
	}
	// Equal timestamps break ties by ID so every client renders the same order.
	if comments[1].ID != "c1" || comments[2].ID != "c2" {
		t.Errorf("expected deterministic tie-break, got %s, %s", comments[1].ID, comments[2].ID)
	}
}
