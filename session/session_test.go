package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testStore() *Store {
	return NewStore(Config{})
}

func TestCreateAndGet(t *testing.T) {
	s := testStore()
	profile := StudentProfile{StudentID: "stu-1", Name: "Mina", Level: "intermediate"}

	sess := s.Create("doc_abc", profile)
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("session id = %q, want sess_ prefix", sess.ID)
	}
	if sess.DocumentID != "doc_abc" || sess.StudentID != "stu-1" {
		t.Errorf("session = %+v", sess)
	}
	if len(sess.Messages) != 0 || sess.VocabularyNotes == nil || sess.GrammarNotes == nil {
		t.Error("fresh session should have empty, non-nil collections")
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("got %q, want %q", got.ID, sess.ID)
	}

	if p, ok := s.Profile("stu-1"); !ok || p.Name != "Mina" {
		t.Errorf("profile = %+v, ok=%v", p, ok)
	}
}

func TestGetUnknown(t *testing.T) {
	s := testStore()
	if _, err := s.Get("sess_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLessonContextDefaults(t *testing.T) {
	s := testStore()
	sess := s.Create("doc_1", StudentProfile{StudentID: "stu"})

	ctx, err := s.Context(sess.ID)
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if ctx.Topic != "General English" || ctx.CurrentFocus != "introduction" {
		t.Errorf("context = %+v", ctx)
	}
	if ctx.DocumentID != "doc_1" {
		t.Errorf("document id = %q", ctx.DocumentID)
	}

	err = s.UpdateContext(sess.ID, func(c *LessonContext) {
		c.Topic = "Phrasal Verbs"
		c.CurrentFocus = "practice"
	})
	if err != nil {
		t.Fatalf("UpdateContext: %v", err)
	}
	ctx, _ = s.Context(sess.ID)
	if ctx.Topic != "Phrasal Verbs" || ctx.CurrentFocus != "practice" {
		t.Errorf("updated context = %+v", ctx)
	}
}

func TestMessagesAndNotes(t *testing.T) {
	s := testStore()
	sess := s.Create("doc_1", StudentProfile{StudentID: "stu"})

	s.AppendMessage(sess.ID, Message{Role: "user", Content: "Hello teacher"})
	s.AppendMessage(sess.ID, Message{Role: "assistant", Content: "Hello! Ready to begin?"})
	s.AppendMessage(sess.ID, Message{Role: "user", Content: "Yes"})
	s.AddVocabulary(sess.ID, []string{"begin", "ready"})
	s.AddGrammar(sess.ID, []string{"question inversion"})

	got, _ := s.Get(sess.ID)
	if len(got.Messages) != 3 {
		t.Errorf("messages = %d, want 3", len(got.Messages))
	}
	if got.Messages[0].At.IsZero() {
		t.Error("message timestamp should default to now")
	}

	st, err := s.Stats(sess.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalMessages != 3 || st.UserMessages != 2 || st.AIResponses != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.VocabularyItems != 2 || st.GrammarNotes != 1 {
		t.Errorf("note counts = %+v", st)
	}
	if st.LastActivity.IsZero() {
		t.Error("last activity missing")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := testStore()
	sess := s.Create("doc_1", StudentProfile{StudentID: "stu"})
	s.AppendMessage(sess.ID, Message{Role: "user", Content: "original"})

	got, _ := s.Get(sess.ID)
	got.Messages[0].Content = "mutated"

	again, _ := s.Get(sess.ID)
	if again.Messages[0].Content != "original" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestEnd(t *testing.T) {
	s := testStore()
	sess := s.Create("doc_1", StudentProfile{StudentID: "stu"})
	s.AppendMessage(sess.ID, Message{Role: "user", Content: "bye"})

	final, err := s.End(sess.ID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(final.Messages) != 1 {
		t.Errorf("final messages = %d", len(final.Messages))
	}
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Error("ended session should be gone")
	}
	if _, err := s.Context(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Error("ended session context should be gone")
	}
	if _, err := s.End(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Error("double end should report not found")
	}
}

func TestCleanupExpired(t *testing.T) {
	s := NewStore(Config{MaxAge: time.Hour})

	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	stale := s.Create("doc_old", StudentProfile{StudentID: "a"})
	current = current.Add(30 * time.Minute)
	fresh := s.Create("doc_new", StudentProfile{StudentID: "b"})

	// Advance past the stale session's max age, but not the fresh one's.
	current = current.Add(45 * time.Minute)
	if removed := s.CleanupExpired(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := s.Get(stale.ID); !errors.Is(err, ErrNotFound) {
		t.Error("stale session should be removed")
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("active = %d, want 1", s.ActiveCount())
	}
}

func TestActivityExtendsLifetime(t *testing.T) {
	s := NewStore(Config{MaxAge: time.Hour})

	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	sess := s.Create("doc", StudentProfile{StudentID: "a"})
	current = current.Add(50 * time.Minute)
	s.AppendMessage(sess.ID, Message{Role: "user", Content: "still here"})

	current = current.Add(50 * time.Minute)
	if removed := s.CleanupExpired(); removed != 0 {
		t.Fatalf("removed = %d, want 0 (activity reset the clock)", removed)
	}
}
