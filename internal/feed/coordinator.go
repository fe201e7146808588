package feed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/audiolog-app/audiolog-backend/internal/ai"
	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/store"
)

// Coordinator applies user-intent mutations optimistically to the local
// mirrors, issues the corresponding remote writes and reconciles.
//
// Rollback is asymmetric on purpose: the settings merge path reverts local
// state when the write fails, every other optimistic path leaves the mirror
// alone and lets the next authoritative snapshot correct it.
type Coordinator struct {
	store store.Store
	mgr   *Manager
	ai    ai.Service

	userID   string
	userName string

	likeMu       sync.Mutex
	likeInFlight map[string]struct{}
}

func NewCoordinator(s store.Store, mgr *Manager, svc ai.Service, userID string) *Coordinator {
	return &Coordinator{
		store:        s,
		mgr:          mgr,
		ai:           svc,
		userID:       userID,
		userName:     models.DisplayName(userID),
		likeInFlight: make(map[string]struct{}),
	}
}

// UserID returns the authenticated user this coordinator mutates as.
func (c *Coordinator) UserID() string { return c.userID }

// UserName returns the derived display name.
func (c *Coordinator) UserName() string { return c.userName }

// ToggleLike flips the user's membership in a log's like set. The local
// mirror updates immediately; the remote write follows. Concurrent toggles on
// the same log are serialized by dropping the second intent, not queueing it.
// A failed write is logged and left for the next snapshot to correct.
func (c *Coordinator) ToggleLike(ctx context.Context, logID string) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}

	c.likeMu.Lock()
	if _, busy := c.likeInFlight[logID]; busy {
		c.likeMu.Unlock()
		return nil // dropped, not queued
	}
	c.likeInFlight[logID] = struct{}{}
	c.likeMu.Unlock()

	defer func() {
		c.likeMu.Lock()
		delete(c.likeInFlight, logID)
		c.likeMu.Unlock()
	}()

	l, ok := c.mgr.Log(logID)
	if !ok {
		return fmt.Errorf("%w: unknown log %s", ErrValidation, logID)
	}
	liked := !l.LikedBy(c.userID)

	c.mgr.applyLocalLike(logID, c.userID, liked)

	if err := c.store.ToggleLike(ctx, logID, c.userID, liked); err != nil {
		// No rollback here: the logs subscription will overwrite the mirror
		// with server truth.
		log.Printf("feed: like toggle for log %s failed: %v", logID, err)
	}
	return nil
}

// SubmitComment validates and appends a comment. Empty or whitespace-only
// text is rejected before any remote write. The new comment is not inserted
// locally; it arrives through the comment-thread subscription.
func (c *Coordinator) SubmitComment(ctx context.Context, logID, text string) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty comment", ErrValidation)
	}

	_, err := c.store.AppendComment(ctx, models.Comment{
		LogID:    logID,
		UserID:   c.userID,
		UserName: c.userName,
		Text:     text,
	})
	if err != nil {
		log.Printf("feed: comment on log %s failed: %v", logID, err)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

// MergeSettings applies a partial settings update optimistically, then issues
// the merge-write. On failure the local mirror is reverted to the captured
// pre-update state; the settings subscription cannot be relied on to correct
// it on the same tick.
func (c *Coordinator) MergeSettings(ctx context.Context, patch models.SettingsPatch) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}
	if patch.IsZero() {
		return nil
	}

	prev := c.mgr.applyLocalSettings(c.userID, patch)

	if err := c.store.MergeSettings(ctx, c.userID, patch); err != nil {
		log.Printf("feed: settings merge for user %s failed, reverting: %v", c.userID, err)
		c.mgr.restoreSettings(c.userID, prev)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

// UpdateAvatar merges a partial avatar change; untouched parts keep their
// current style.
func (c *Coordinator) UpdateAvatar(ctx context.Context, patch models.AvatarPatch) error {
	return c.MergeSettings(ctx, models.SettingsPatch{Avatar: &patch})
}

// RandomizeAvatar rolls a full random style and merges it.
func (c *Coordinator) RandomizeAvatar(ctx context.Context) error {
	pick := func(opts []string) *string {
		v := opts[rand.Intn(len(opts))]
		return &v
	}
	return c.UpdateAvatar(ctx, models.AvatarPatch{
		Background: pick(models.AvatarBackgrounds),
		Eyes:       pick(models.AvatarEyes),
		Mouth:      pick(models.AvatarMouths),
		Accessory:  pick(models.AvatarAccessories),
	})
}

// CompleteOnboarding records the chosen circle in the settings document.
func (c *Coordinator) CompleteOnboarding(ctx context.Context, category, title, description string) error {
	return c.MergeSettings(ctx, models.SettingsPatch{
		Category:    models.StringPtr(category),
		Title:       models.StringPtr(title),
		Description: models.StringPtr(description),
	})
}

// LeaveCircle clears the circle locally only; no remote write happens until
// the user completes onboarding into a new circle.
func (c *Coordinator) LeaveCircle() {
	if c.userID == "" {
		return
	}
	c.mgr.applyLocalSettings(c.userID, models.SettingsPatch{Category: models.StringPtr("")})
}

// GenerateTitle asks the model for a journey title from the user's recent
// transcripts and merges the suggestion into settings. No optimistic local
// apply: the settings subscription reflects the result.
func (c *Coordinator) GenerateTitle(ctx context.Context) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}

	logsText := c.ownTranscripts(10, " ")
	title, subtitle, err := c.ai.SuggestTitle(ctx, logsText)
	if err != nil {
		log.Printf("feed: title suggestion failed: %v", err)
		return fmt.Errorf("%w: %v", ErrProxy, err)
	}

	err = c.store.MergeSettings(ctx, c.userID, models.SettingsPatch{
		Title:       models.StringPtr(title),
		Description: models.StringPtr(subtitle),
	})
	if err != nil {
		log.Printf("feed: storing suggested title failed: %v", err)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

// GenerateRecap summarizes the user's last week of logs. The text is
// ephemeral presentation state and is not persisted.
func (c *Coordinator) GenerateRecap(ctx context.Context) (string, error) {
	if c.userID == "" {
		return "", ErrUnauthenticated
	}

	text, err := c.ai.Recap(ctx, c.ownTranscripts(7, "\n\n"))
	if err != nil {
		log.Printf("feed: recap generation failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrProxy, err)
	}
	return text, nil
}

// AnalyzePersona derives the user's persona summary from all their
// transcripts and merges it into settings. A user with no logs is a no-op.
func (c *Coordinator) AnalyzePersona(ctx context.Context) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}

	logsText := c.ownTranscripts(0, "\n")
	if logsText == "" {
		return nil
	}

	text, err := c.ai.Persona(ctx, logsText)
	if err != nil {
		log.Printf("feed: persona analysis failed: %v", err)
		return fmt.Errorf("%w: %v", ErrProxy, err)
	}

	err = c.store.MergeSettings(ctx, c.userID, models.SettingsPatch{AIPersona: models.StringPtr(text)})
	if err != nil {
		log.Printf("feed: storing persona failed: %v", err)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

// RequestInsight fetches a one-line insight for one of the user's own logs
// and writes it exactly once; a log that already carries an insight is left
// untouched.
func (c *Coordinator) RequestInsight(ctx context.Context, logID string) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}

	l, ok := c.mgr.Log(logID)
	if !ok {
		return fmt.Errorf("%w: unknown log %s", ErrValidation, logID)
	}
	if l.UserID != c.userID {
		return fmt.Errorf("%w: insight is only available on own logs", ErrValidation)
	}
	if l.AIInsight != "" {
		return nil
	}

	text, err := c.ai.Insight(ctx, l.Transcript)
	if err != nil {
		log.Printf("feed: insight for log %s failed: %v", logID, err)
		return fmt.Errorf("%w: %v", ErrProxy, err)
	}

	if err := c.store.SetInsight(ctx, logID, text); err != nil {
		if err == store.ErrInsightAlreadySet {
			return nil // raced another writer; write-once holds
		}
		log.Printf("feed: storing insight for log %s failed: %v", logID, err)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

// ownTranscripts joins the user's newest transcripts from the mirror. A limit
// of 0 means all.
func (c *Coordinator) ownTranscripts(limit int, sep string) string {
	var parts []string
	for _, l := range c.mgr.Logs() {
		if l.UserID != c.userID {
			continue
		}
		parts = append(parts, l.Transcript)
		if limit > 0 && len(parts) >= limit {
			break
		}
	}
	return strings.Join(parts, sep)
}
