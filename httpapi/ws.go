package httpapi

import (
	"errors"
	"io"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/edulingo/edulingo/kit"
	"github.com/edulingo/edulingo/session"
)

// chatMessage is one inbound frame from the student client.
type chatMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// chatResponse is one outbound teacher turn.
type chatResponse struct {
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Vocabulary []string  `json:"vocabulary"`
	Grammar    []string  `json:"grammar"`
	Timestamp  time.Time `json:"timestamp"`
}

type wsError struct {
	Error string `json:"error"`
}

// handleChat runs the realtime lesson loop over one WebSocket connection.
// Frames with type "chat" get a tutor reply; anything else is ignored.
func (s *Server) handleChat(ws *websocket.Conn) {
	defer ws.Close()
	r := ws.Request()
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.sessions.Get(sessionID); err != nil {
		websocket.JSON.Send(ws, wsError{Error: "Session not found"})
		return
	}
	s.logger.Info("chat connected", "session_id", sessionID)

	for {
		var msg chatMessage
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("chat receive failed", "session_id", sessionID, "error", err)
			}
			return
		}
		if msg.Type != "chat" {
			continue
		}

		if err := s.respondChat(ws, sessionID, msg.Content); err != nil {
			s.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
			if err := websocket.JSON.Send(ws, wsError{Error: "failed to generate response"}); err != nil {
				return
			}
		}
	}
}

// respondChat records the student turn, asks the tutor for a reply and sends
// it back with any extracted learning notes.
func (s *Server) respondChat(ws *websocket.Conn, sessionID, content string) error {
	r := ws.Request()
	turnID := s.newTurnID()
	ctx := kit.WithRequestID(r.Context(), turnID)
	ctx = kit.WithSessionID(ctx, sessionID)
	ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
	s.logger.Debug("chat turn", "session_id", sessionID, "turn_id", turnID)

	if err := s.sessions.AppendMessage(sessionID, session.Message{Role: "user", Content: content}); err != nil {
		return err
	}
	lessonCtx, err := s.sessions.Context(sessionID)
	if err != nil {
		return err
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	profile, _ := s.sessions.Profile(sess.StudentID)

	reply, err := s.agent.Respond(ctx, content, lessonCtx, profile, sess.Messages)
	if err != nil {
		return err
	}

	if err := s.sessions.AppendMessage(sessionID, session.Message{Role: "assistant", Content: reply.Message}); err != nil {
		return err
	}
	if err := s.sessions.AddVocabulary(sessionID, reply.VocabularyItems); err != nil {
		return err
	}
	if err := s.sessions.AddGrammar(sessionID, reply.GrammarNotes); err != nil {
		return err
	}

	return websocket.JSON.Send(ws, chatResponse{
		Type:       "chat_response",
		Content:    reply.Message,
		Vocabulary: reply.VocabularyItems,
		Grammar:    reply.GrammarNotes,
		Timestamp:  reply.At,
	})
}
