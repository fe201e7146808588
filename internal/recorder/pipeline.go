// Package recorder turns a bounded microphone capture session into a
// persisted log: chunks are collected while recording, concatenated and
// base64-encoded on stop, transcribed through the AI proxy, and appended to
// the public feed as a single document.
package recorder

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/audiolog-app/audiolog-backend/internal/ai"
	"github.com/audiolog-app/audiolog-backend/internal/feed"
	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/store"
)

// State is the pipeline's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateEncoding
	StateTranscribing
	StatePersisted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateEncoding:
		return "encoding"
	case StateTranscribing:
		return "transcribing"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transcriber is the slice of the AI proxy the pipeline needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64, mimeType string) (ai.Transcription, error)
}

// Pipeline drives one user's recording sessions. It is safe for concurrent
// use; a session runs Start → chunks → Stop.
type Pipeline struct {
	store  store.Store
	mgr    *feed.Manager
	ai     Transcriber
	userID string

	// OnElapsed, when set, receives the elapsed-seconds counter once per
	// second while recording. Presentation-only state, never persisted.
	OnElapsed func(seconds int)

	// OnState, when set, receives every state transition.
	OnState func(State)

	tick time.Duration

	mu       sync.Mutex
	state    State
	chunks   [][]byte
	mimeType string
	elapsed  int
	stopTick chan struct{}
}

func New(s store.Store, mgr *feed.Manager, t Transcriber, userID string) *Pipeline {
	return &Pipeline{
		store:  s,
		mgr:    mgr,
		ai:     t,
		userID: userID,
		tick:   time.Second,
		state:  StateIdle,
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Elapsed returns the current elapsed-seconds counter.
func (p *Pipeline) Elapsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	cb := p.OnState
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Start begins a capture session. Valid from Idle, or from a finished
// (Persisted/Failed) session.
func (p *Pipeline) Start(mimeType string) error {
	if p.userID == "" {
		return feed.ErrUnauthenticated
	}

	p.mu.Lock()
	switch p.state {
	case StateIdle, StatePersisted, StateFailed:
	default:
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot start recording while %s", feed.ErrValidation, p.state)
	}
	p.state = StateRecording
	p.chunks = nil
	p.mimeType = mimeType
	if p.mimeType == "" {
		p.mimeType = "audio/webm"
	}
	p.elapsed = 0
	stop := make(chan struct{})
	p.stopTick = stop
	cb := p.OnState
	p.mu.Unlock()

	if cb != nil {
		cb(StateRecording)
	}

	go p.runTimer(stop)
	return nil
}

func (p *Pipeline) runTimer(stop chan struct{}) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.state != StateRecording {
				p.mu.Unlock()
				return
			}
			p.elapsed++
			n := p.elapsed
			cb := p.OnElapsed
			p.mu.Unlock()
			if cb != nil {
				cb(n)
			}
		}
	}
}

// AppendChunk adds captured audio while recording.
func (p *Pipeline) AppendChunk(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRecording {
		return fmt.Errorf("%w: not recording", feed.ErrValidation)
	}
	p.chunks = append(p.chunks, append([]byte(nil), data...))
	return nil
}

// Stop ends the capture session and runs it to completion: the chunks are
// concatenated and encoded, the AI proxy transcribes the audio, and exactly
// one log is appended. Any failure discards the recording; no partial log is
// created and nothing is retried.
func (p *Pipeline) Stop(ctx context.Context) (models.Log, error) {
	p.mu.Lock()
	if p.state != StateRecording {
		p.mu.Unlock()
		return models.Log{}, fmt.Errorf("%w: not recording", feed.ErrValidation)
	}
	close(p.stopTick)
	p.stopTick = nil
	chunks := p.chunks
	p.chunks = nil
	mimeType := p.mimeType
	p.state = StateEncoding
	cb := p.OnState
	p.mu.Unlock()

	if cb != nil {
		cb(StateEncoding)
	}

	var size int
	for _, c := range chunks {
		size += len(c)
	}
	raw := make([]byte, 0, size)
	for _, c := range chunks {
		raw = append(raw, c...)
	}

	payload := base64.StdEncoding.EncodeToString(raw)
	// The stored audio is the same transportable encoding the proxy receives,
	// wrapped as a playable data URL.
	audioData := "data:" + mimeType + ";base64," + payload

	p.setState(StateTranscribing)

	analysis, err := p.ai.Transcribe(ctx, payload, mimeType)
	if err != nil {
		p.setState(StateFailed)
		log.Printf("recorder: transcription failed, recording discarded: %v", err)
		return models.Log{}, fmt.Errorf("%w: %v", feed.ErrProxy, err)
	}

	settings := p.mgr.Settings(p.userID)
	entry := models.Log{
		UserID:     p.userID,
		UserName:   models.DisplayName(p.userID),
		Transcript: analysis.Transcript,
		Milestone:  analysis.Milestone,
		Summary:    analysis.Summary,
		AudioData:  audioData,
		DayNumber:  p.nextDayNumber(),
		Category:   settings.Category,
		Likes:      []string{},
	}

	id, err := p.store.AppendLog(ctx, entry)
	if err != nil {
		p.setState(StateFailed)
		log.Printf("recorder: persisting log failed, recording discarded: %v", err)
		return models.Log{}, fmt.Errorf("%w: %v", feed.ErrRemoteWrite, err)
	}
	entry.ID = id

	p.setState(StatePersisted)
	return entry, nil
}

// nextDayNumber snapshots the user's sequential log count from the local
// mirror at creation time. It is never recomputed afterwards, so concurrent
// creation across devices can produce duplicate day numbers; that imprecision
// is part of the contract.
func (p *Pipeline) nextDayNumber() int {
	count := 0
	for _, l := range p.mgr.Logs() {
		if l.UserID == p.userID {
			count++
		}
	}
	return count + 1
}
