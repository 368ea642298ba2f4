// Package tutor is the LLM glue for lessons: lesson-plan generation from
// uploaded documents, chat replies during a session, and end-of-session
// summaries. Without an API key the agent serves deterministic mock responses
// so the rest of the system stays testable.
package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/edulingo/edulingo/session"
)

const systemPrompt = "You are an English teacher. Teach from the provided document, " +
	"adapt to the student's level, highlight vocabulary and grammar, and keep responses encouraging."

// Config configures the agent.
type Config struct {
	// APIKey enables live completions. Empty key means mock mode.
	APIKey string `json:"-" yaml:"-"`

	// Model is the chat model identifier (default gpt-4o-mini).
	Model string `json:"model" yaml:"model"`

	// MaxTokens bounds one completion (default 2000).
	MaxTokens int64 `json:"max_tokens" yaml:"max_tokens"`

	// Temperature for completions (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// LessonPlan is the structured outcome of analyzing an uploaded document.
type LessonPlan struct {
	Objectives []string `json:"objectives"`
	Vocabulary []string `json:"vocabulary"`
	Grammar    []string `json:"grammar"`
	Activities []string `json:"activities"`
	RawContent string   `json:"raw_content,omitempty"`
}

// Reply is one teacher turn with extracted learning notes.
type Reply struct {
	Message         string    `json:"message"`
	VocabularyItems []string  `json:"vocabulary_items"`
	GrammarNotes    []string  `json:"grammar_notes"`
	At              time.Time `json:"timestamp"`
}

// Summary is the end-of-session feedback.
type Summary struct {
	SessionID         string   `json:"session_id"`
	KeyConcepts       []string `json:"key_concepts"`
	VocabularyLearned []string `json:"vocabulary_learned"`
	GrammarCovered    []string `json:"grammar_covered"`
	Recommendations   []string `json:"recommendations"`
	Feedback          string   `json:"feedback"`
}

// Agent talks to the chat-completions API, or serves mocks without a key.
type Agent struct {
	cfg    Config
	client *openai.Client
	logger *slog.Logger
}

// NewAgent builds the agent. A missing API key is not an error; the agent
// runs in mock mode and says so once.
func NewAgent(cfg Config) *Agent {
	cfg.defaults()
	a := &Agent{cfg: cfg, logger: cfg.Logger}
	if cfg.APIKey == "" {
		a.logger.Warn("no OpenAI API key configured, tutor runs in mock mode")
		return a
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	a.client = &client
	return a
}

// Mock reports whether the agent serves canned responses.
func (a *Agent) Mock() bool { return a.client == nil }

// PlanLesson analyzes document content into a lesson plan. Non-JSON model
// output degrades to a plan carrying the raw content.
func (a *Agent) PlanLesson(ctx context.Context, content, fileType string) (*LessonPlan, error) {
	if a.client == nil {
		return &LessonPlan{
			Objectives: []string{"Basic English conversation skills"},
			Vocabulary: []string{"hello", "world", "learn"},
			Grammar:    []string{"Present tense verbs"},
			Activities: []string{"Reading comprehension", "Vocabulary practice"},
			RawContent: "Mock lesson plan - OpenAI API not configured",
		}, nil
	}

	prompt := fmt.Sprintf(
		"Analyze this %s English learning document and reply with a JSON object holding "+
			"objectives, vocabulary, grammar and activities arrays.\n\nDocument:\n%s",
		fileType, content)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("lesson plan: %w", err)
	}
	return parseLessonPlan(raw, a.logger), nil
}

// Respond generates the teacher's reply to a student message.
func (a *Agent) Respond(ctx context.Context, userMessage string, lessonCtx session.LessonContext, profile session.StudentProfile, history []session.Message) (*Reply, error) {
	if a.client == nil {
		return &Reply{
			Message:         fmt.Sprintf("Good effort! You said: %q. Can you use that in a full sentence?", userMessage),
			VocabularyItems: []string{},
			GrammarNotes:    []string{},
			At:              time.Now().UTC(),
		}, nil
	}

	prompt := fmt.Sprintf("%s\nStudent says: %q\nReply as the teacher, then append a JSON line "+
		`{"vocabulary":[...],"grammar":[...]} with any items worth noting.`,
		contextPrompt(lessonCtx, profile, history), userMessage)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat reply: %w", err)
	}
	return parseReply(raw), nil
}

// Summarize produces end-of-session feedback from the full transcript.
func (a *Agent) Summarize(ctx context.Context, sess *session.Session, profile session.StudentProfile) (*Summary, error) {
	if a.client == nil {
		return &Summary{
			SessionID:         sess.ID,
			KeyConcepts:       []string{},
			VocabularyLearned: sess.VocabularyNotes,
			GrammarCovered:    sess.GrammarNotes,
			Recommendations:   []string{"Keep practicing daily conversation"},
			Feedback:          "Mock session summary - OpenAI API not configured",
		}, nil
	}

	var transcript strings.Builder
	for _, m := range sess.Messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	prompt := fmt.Sprintf(
		"Student level: %s\nConversation:\n%s\nVocabulary notes: %s\nGrammar notes: %s\n"+
			"Summarize the lesson with key concepts, strengths, improvements and next steps.",
		profile.Level, transcript.String(),
		strings.Join(sess.VocabularyNotes, ", "), strings.Join(sess.GrammarNotes, ", "))

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("session summary: %w", err)
	}
	return &Summary{
		SessionID:         sess.ID,
		VocabularyLearned: sess.VocabularyNotes,
		GrammarCovered:    sess.GrammarNotes,
		Feedback:          raw,
	}, nil
}

func (a *Agent) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(a.cfg.Temperature),
		MaxTokens:   openai.Int(a.cfg.MaxTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// contextPrompt assembles lesson context, student profile and the last five
// conversation turns.
func contextPrompt(lessonCtx session.LessonContext, profile session.StudentProfile, history []session.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nObjectives: %s\nVocabulary: %s\nGrammar focus: %s\n",
		lessonCtx.Topic,
		strings.Join(lessonCtx.Objectives, ", "),
		strings.Join(lessonCtx.Vocabulary, ", "),
		strings.Join(lessonCtx.Grammar, ", "))
	fmt.Fprintf(&sb, "Student: %s (level %s)\n", profile.Name, profile.Level)

	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if len(recent) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	return sb.String()
}

// parseLessonPlan tries strict JSON first and falls back to carrying the raw
// model output.
func parseLessonPlan(raw string, logger *slog.Logger) *LessonPlan {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "{") {
		var plan LessonPlan
		if err := json.Unmarshal([]byte(trimmed), &plan); err == nil {
			return &plan
		}
		logger.Warn("lesson plan response is not valid JSON, keeping raw content")
	}
	return &LessonPlan{
		Objectives: []string{},
		Vocabulary: []string{},
		Grammar:    []string{},
		Activities: []string{},
		RawContent: raw,
	}
}

// parseReply splits a trailing JSON notes line off the conversational reply.
func parseReply(raw string) *Reply {
	reply := &Reply{
		Message:         strings.TrimSpace(raw),
		VocabularyItems: []string{},
		GrammarNotes:    []string{},
		At:              time.Now().UTC(),
	}

	idx := strings.LastIndexByte(raw, '\n')
	if idx < 0 {
		return reply
	}
	last := strings.TrimSpace(raw[idx+1:])
	if !strings.HasPrefix(last, "{") {
		return reply
	}

	var notes struct {
		Vocabulary []string `json:"vocabulary"`
		Grammar    []string `json:"grammar"`
	}
	if err := json.Unmarshal([]byte(last), &notes); err != nil {
		return reply
	}
	reply.Message = strings.TrimSpace(raw[:idx])
	if notes.Vocabulary != nil {
		reply.VocabularyItems = notes.Vocabulary
	}
	if notes.Grammar != nil {
		reply.GrammarNotes = notes.Grammar
	}
	return reply
}
