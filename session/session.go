// Package session is the in-memory store for active lesson sessions. Sessions
// live for the lifetime of the process; an expiry janitor sweeps idle ones.
// There is no durable persistence.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/edulingo/edulingo/idgen"
)

// ErrNotFound is returned when a session id is unknown or already expired.
var ErrNotFound = errors.New("session not found")

// StudentProfile describes the learner a session belongs to.
type StudentProfile struct {
	StudentID   string   `json:"student_id"`
	Name        string   `json:"name"`
	Level       string   `json:"level"` // beginner, intermediate, advanced
	NativeLang  string   `json:"native_language,omitempty"`
	Preferences []string `json:"learning_preferences,omitempty"`
}

// Message is one chat turn in a session.
type Message struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// LessonContext is the mutable focus of an ongoing lesson.
type LessonContext struct {
	DocumentID   string   `json:"document_id"`
	Topic        string   `json:"topic"`
	Objectives   []string `json:"objectives"`
	Vocabulary   []string `json:"vocabulary"`
	Grammar      []string `json:"grammar"`
	CurrentFocus string   `json:"current_focus"`
}

// Session is one active lesson.
type Session struct {
	ID              string         `json:"session_id"`
	DocumentID      string         `json:"document_id"`
	StudentID       string         `json:"student_id"`
	Messages        []Message      `json:"messages"`
	VocabularyNotes []string       `json:"vocabulary_notes"`
	GrammarNotes    []string       `json:"grammar_notes"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Stats summarizes one session's activity.
type Stats struct {
	TotalMessages   int       `json:"total_messages"`
	UserMessages    int       `json:"user_messages"`
	AIResponses     int       `json:"ai_responses"`
	VocabularyItems int       `json:"vocabulary_items"`
	GrammarNotes    int       `json:"grammar_notes"`
	DurationMinutes float64   `json:"session_duration_minutes"`
	LastActivity    time.Time `json:"last_activity"`
}

// Config configures the store.
type Config struct {
	// MaxAge is the idle lifetime of a session (default 24h).
	MaxAge time.Duration `json:"max_age" yaml:"max_age"`

	// SweepInterval is how often the janitor runs (default 1h).
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store holds active sessions, student profiles and lesson contexts under one
// mutex. All methods are safe for concurrent use.
type Store struct {
	cfg    Config
	logger *slog.Logger
	newID  idgen.Generator
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	profiles map[string]StudentProfile
	contexts map[string]*LessonContext
}

// NewStore creates an empty store. Run starts the expiry janitor.
func NewStore(cfg Config) *Store {
	cfg.defaults()
	return &Store{
		cfg:      cfg,
		logger:   cfg.Logger,
		newID:    idgen.Prefixed("sess_", idgen.UUIDv7()),
		now:      time.Now,
		sessions: map[string]*Session{},
		profiles: map[string]StudentProfile{},
		contexts: map[string]*LessonContext{},
	}
}

// Create opens a session for a document and student. The lesson context starts
// at a generic introduction focus.
func (s *Store) Create(documentID string, profile StudentProfile) *Session {
	now := s.now()
	sess := &Session{
		ID:              s.newID(),
		DocumentID:      documentID,
		StudentID:       profile.StudentID,
		Messages:        []Message{},
		VocabularyNotes: []string{},
		GrammarNotes:    []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.profiles[profile.StudentID] = profile
	s.contexts[sess.ID] = &LessonContext{
		DocumentID:   documentID,
		Topic:        "General English",
		Objectives:   []string{},
		Vocabulary:   []string{},
		Grammar:      []string{},
		CurrentFocus: "introduction",
	}

	s.logger.Info("session created", "session_id", sess.ID, "student_id", profile.StudentID, "document_id", documentID)
	return snapshot(sess)
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(sess), nil
}

// Profile returns the stored student profile.
func (s *Store) Profile(studentID string) (StudentProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[studentID]
	return p, ok
}

// AppendMessage records a chat turn and bumps activity.
func (s *Store) AppendMessage(id string, msg Message) error {
	if msg.At.IsZero() {
		msg.At = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = s.now()
	return nil
}

// AddVocabulary appends vocabulary notes and bumps activity.
func (s *Store) AddVocabulary(id string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.VocabularyNotes = append(sess.VocabularyNotes, items...)
	sess.UpdatedAt = s.now()
	return nil
}

// AddGrammar appends grammar notes and bumps activity.
func (s *Store) AddGrammar(id string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.GrammarNotes = append(sess.GrammarNotes, items...)
	sess.UpdatedAt = s.now()
	return nil
}

// Context returns a copy of the session's lesson context.
func (s *Store) Context(id string) (LessonContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.contexts[id]
	if !ok {
		return LessonContext{}, ErrNotFound
	}
	return *ctx, nil
}

// UpdateContext applies a mutation to the lesson context under the lock.
func (s *Store) UpdateContext(id string, update func(*LessonContext)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.contexts[id]
	if !ok {
		return ErrNotFound
	}
	update(ctx)
	return nil
}

// End closes a session and returns its final state.
func (s *Store) End(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sess.UpdatedAt = s.now()
	final := snapshot(sess)
	delete(s.sessions, id)
	delete(s.contexts, id)
	s.logger.Info("session ended", "session_id", id, "messages", len(final.Messages))
	return final, nil
}

// Stats computes activity statistics for one session.
func (s *Store) Stats(id string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Stats{}, ErrNotFound
	}

	st := Stats{
		TotalMessages:   len(sess.Messages),
		VocabularyItems: len(sess.VocabularyNotes),
		GrammarNotes:    len(sess.GrammarNotes),
		DurationMinutes: sess.UpdatedAt.Sub(sess.CreatedAt).Minutes(),
		LastActivity:    sess.UpdatedAt,
	}
	for _, m := range sess.Messages {
		switch m.Role {
		case "user":
			st.UserMessages++
		case "assistant":
			st.AIResponses++
		}
	}
	return st, nil
}

// ActiveCount reports the number of live sessions.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanupExpired drops sessions idle longer than MaxAge and returns how many
// were removed.
func (s *Store) CleanupExpired() int {
	cutoff := s.now().Add(-s.cfg.MaxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.contexts, id)
			removed++
			s.logger.Info("expired session removed", "session_id", id)
		}
	}
	return removed
}

// Run sweeps expired sessions until ctx is canceled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				s.logger.Info("session sweep", "removed", n)
			}
		}
	}
}

// snapshot copies a session so callers never share slices with the store.
func snapshot(sess *Session) *Session {
	cp := *sess
	cp.Messages = append([]Message(nil), sess.Messages...)
	cp.VocabularyNotes = append([]string(nil), sess.VocabularyNotes...)
	cp.GrammarNotes = append([]string(nil), sess.GrammarNotes...)
	return &cp
}
