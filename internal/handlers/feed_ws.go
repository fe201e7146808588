package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/audiolog-app/audiolog-backend/internal/ai"
	"github.com/audiolog-app/audiolog-backend/internal/feed"
	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/recorder"
	"github.com/audiolog-app/audiolog-backend/internal/services"
	"github.com/audiolog-app/audiolog-backend/internal/store"
	"github.com/gorilla/websocket"
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// FeedClientMessage represents messages coming from the frontend over WebSocket.
type FeedClientMessage struct {
	Type     string               `json:"type"` // "subscribe", "unsubscribe", "like", "comment", ...
	Scope    string               `json:"scope,omitempty"`
	LogID    string               `json:"log_id,omitempty"`
	Text     string               `json:"text,omitempty"`
	Settings *models.SettingsPatch `json:"settings,omitempty"`
	Avatar   *models.AvatarPatch  `json:"avatar,omitempty"`
	Category string               `json:"category,omitempty"`
	Title    string               `json:"title,omitempty"`
	MimeType string               `json:"mime_type,omitempty"`
	Data     string               `json:"data,omitempty"` // base64 audio chunk
}

// FeedServerMessage is the envelope for everything the gateway sends.
type FeedServerMessage struct {
	Type     string                  `json:"type"`
	Scope    string                  `json:"scope,omitempty"`
	LogID    string                  `json:"log_id,omitempty"`
	Logs     []models.Log            `json:"logs,omitempty"`
	Comments []models.Comment        `json:"comments,omitempty"`
	Settings *models.JourneySettings `json:"settings,omitempty"`
	Log      *models.Log             `json:"log,omitempty"`
	Text     string                  `json:"text,omitempty"`
	Seconds  int                     `json:"seconds,omitempty"`
	State    string                  `json:"state,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// FeedWSHandler hosts one sync engine per WebSocket connection: live mirrors
// of the scopes the client subscribes to, optimistic mutations and the
// recording pipeline, all bound to the connection's authenticated user.
type FeedWSHandler struct {
	store    store.Store
	ai       ai.Service
	sessions *services.SessionService
}

func NewFeedWSHandler(s store.Store, svc ai.Service, sessions *services.SessionService) *FeedWSHandler {
	return &FeedWSHandler{store: s, ai: svc, sessions: sessions}
}

// Serve authenticates, upgrades and runs the connection until the client
// disconnects.
func (h *FeedWSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		// Browser WebSocket clients cannot set headers.
		token = r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}
	}

	userID, ok, err := h.sessions.Validate(r.Context(), token)
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := newFeedSession(h, conn, userID.String())
	defer sess.close()

	sess.run(ctx)
}

// feedSession is the per-connection state: the sync engine plus the single
// writer goroutine feeding the socket.
type feedSession struct {
	conn   *websocket.Conn
	userID string

	mgr      *feed.Manager
	coord    *feed.Coordinator
	pipeline *recorder.Pipeline

	send chan FeedServerMessage
	done chan struct{}
}

func newFeedSession(h *FeedWSHandler, conn *websocket.Conn, userID string) *feedSession {
	s := &feedSession{
		conn:   conn,
		userID: userID,
		send:   make(chan FeedServerMessage, 64),
		done:   make(chan struct{}),
	}

	s.mgr = feed.NewManager(h.store)
	s.mgr.SetSink(s.sinkSnapshot)
	s.coord = feed.NewCoordinator(h.store, s.mgr, h.ai, userID)

	s.pipeline = recorder.New(h.store, s.mgr, h.ai, userID)
	s.pipeline.OnElapsed = func(seconds int) {
		s.push(FeedServerMessage{Type: "rec_elapsed", Seconds: seconds})
	}
	s.pipeline.OnState = func(st recorder.State) {
		s.push(FeedServerMessage{Type: "rec_state", State: st.String()})
	}

	go s.writeLoop()
	return s
}

// sinkSnapshot forwards every applied snapshot, server-confirmed or locally
// optimistic, to the client as a full-state message.
func (s *feedSession) sinkSnapshot(snap store.Snapshot) {
	msg := FeedServerMessage{Type: "snapshot", Scope: string(snap.Scope.Kind)}
	switch snap.Scope.Kind {
	case store.ScopeLogs:
		msg.Logs = snap.Logs
		if msg.Logs == nil {
			msg.Logs = []models.Log{}
		}
	case store.ScopeComments:
		msg.LogID = snap.Scope.LogID
		msg.Comments = snap.Comments
		if msg.Comments == nil {
			msg.Comments = []models.Comment{}
		}
	case store.ScopeSettings:
		msg.Settings = snap.Settings
	}
	s.push(msg)
}

// push queues a message for the writer. A client that cannot keep up loses
// intermediate messages; snapshots are full-state, so the next one catches
// them up.
func (s *feedSession) push(msg FeedServerMessage) {
	select {
	case s.send <- msg:
	case <-s.done:
	default:
		log.Printf("feed ws: dropping %s message for slow client", msg.Type)
	}
}

func (s *feedSession) writeLoop() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *feedSession) close() {
	close(s.done)
	s.mgr.Close()
}

func (s *feedSession) run(ctx context.Context) {
	s.conn.SetReadLimit(16 * 1024 * 1024) // audio chunks ride the socket
	_ = s.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	s.conn.SetPongHandler(func(appData string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var msg FeedClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		s.handle(ctx, msg)
	}
}

func (s *feedSession) handle(ctx context.Context, msg FeedClientMessage) {
	switch msg.Type {
	case "subscribe":
		scope, ok := s.resolveScope(msg)
		if !ok {
			s.push(FeedServerMessage{Type: "error", Error: "unknown scope"})
			return
		}
		if err := s.mgr.Subscribe(ctx, scope); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "unsubscribe":
		scope, ok := s.resolveScope(msg)
		if !ok {
			s.push(FeedServerMessage{Type: "error", Error: "unknown scope"})
			return
		}
		s.mgr.Unsubscribe(scope)

	case "like":
		if err := s.coord.ToggleLike(ctx, msg.LogID); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "comment":
		if err := s.coord.SubmitComment(ctx, msg.LogID, msg.Text); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "settings":
		if msg.Settings == nil {
			s.push(FeedServerMessage{Type: "error", Error: "settings patch is required"})
			return
		}
		if err := s.coord.MergeSettings(ctx, *msg.Settings); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "avatar":
		if msg.Avatar == nil {
			s.push(FeedServerMessage{Type: "error", Error: "avatar patch is required"})
			return
		}
		if err := s.coord.UpdateAvatar(ctx, *msg.Avatar); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "avatar_randomize":
		if err := s.coord.RandomizeAvatar(ctx); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "onboarding":
		if err := s.coord.CompleteOnboarding(ctx, msg.Category, msg.Title, msg.Text); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "leave_circle":
		s.coord.LeaveCircle()

	// Generative operations can take a while; they run off the read loop so
	// pings keep flowing.
	case "generate_title":
		go func() {
			if err := s.coord.GenerateTitle(ctx); err != nil {
				s.push(FeedServerMessage{Type: "error", Error: err.Error()})
			}
		}()

	case "generate_recap":
		go func() {
			text, err := s.coord.GenerateRecap(ctx)
			if err != nil {
				s.push(FeedServerMessage{Type: "error", Error: err.Error()})
				return
			}
			s.push(FeedServerMessage{Type: "recap", Text: text})
		}()

	case "analyze_persona":
		go func() {
			if err := s.coord.AnalyzePersona(ctx); err != nil {
				s.push(FeedServerMessage{Type: "error", Error: err.Error()})
			}
		}()

	case "insight":
		logID := msg.LogID
		go func() {
			if err := s.coord.RequestInsight(ctx, logID); err != nil {
				s.push(FeedServerMessage{Type: "error", Error: err.Error()})
			}
		}()

	case "rec_start":
		if err := s.pipeline.Start(msg.MimeType); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "rec_chunk":
		chunk, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			s.push(FeedServerMessage{Type: "error", Error: "malformed audio chunk"})
			return
		}
		if err := s.pipeline.AppendChunk(chunk); err != nil {
			s.push(FeedServerMessage{Type: "error", Error: err.Error()})
		}

	case "rec_stop":
		go func() {
			entry, err := s.pipeline.Stop(ctx)
			if err != nil {
				s.push(FeedServerMessage{Type: "error", Error: err.Error()})
				return
			}
			s.push(FeedServerMessage{Type: "log_persisted", Log: &entry})
		}()

	case "ping":
		s.push(FeedServerMessage{Type: "pong"})

	default:
		// Ignore unknown types
	}
}

func (s *feedSession) resolveScope(msg FeedClientMessage) (store.Scope, bool) {
	switch msg.Scope {
	case "logs":
		return store.LogsScope(), true
	case "comments":
		if msg.LogID == "" {
			return store.Scope{}, false
		}
		return store.CommentsScope(msg.LogID), true
	case "settings":
		return store.SettingsScope(s.userID), true
	default:
		return store.Scope{}, false
	}
}
