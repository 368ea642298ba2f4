// Package httpapi is the HTTP and WebSocket surface of the tutoring backend.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/websocket"

	"github.com/edulingo/edulingo/docparse"
	"github.com/edulingo/edulingo/idgen"
	"github.com/edulingo/edulingo/kit"
	"github.com/edulingo/edulingo/observability"
	"github.com/edulingo/edulingo/session"
	"github.com/edulingo/edulingo/speech"
	"github.com/edulingo/edulingo/tutor"
)

// Config controls the transport layer.
type Config struct {
	AllowedOrigins    []string
	MaxUploadBytes    int64
	AllowedExtensions []string
	Logger            *slog.Logger
}

func (c *Config) defaults() {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 * 1024 * 1024
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".pdf", ".txt", ".docx", ".md"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server bundles the application services behind HTTP handlers.
type Server struct {
	cfg       Config
	processor *docparse.Processor
	sessions  *session.Store
	agent     *tutor.Agent
	speech    *speech.Service
	events    *observability.EventLogger
	logger    *slog.Logger

	// newTurnID tags each chat turn with a short correlation key for logs.
	newTurnID idgen.Generator
}

// NewServer wires the handlers. events may be nil when telemetry is disabled.
func NewServer(cfg Config, proc *docparse.Processor, sessions *session.Store, agent *tutor.Agent, sp *speech.Service, events *observability.EventLogger) *Server {
	cfg.defaults()
	return &Server{
		cfg:       cfg,
		processor: proc,
		sessions:  sessions,
		agent:     agent,
		speech:    sp,
		events:    events,
		logger:    cfg.Logger,
		newTurnID: idgen.NanoID(8),
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Post("/batch", s.handleBatch)
			r.Get("/stats", s.handleProcessorStats)
			r.Get("/metrics", s.handleParserMetrics)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{sessionID}", s.handleGetSession)
			r.Get("/{sessionID}/stats", s.handleSessionStats)
			r.Post("/{sessionID}/summary", s.handleSessionSummary)
		})
		r.Post("/tts/synthesize", s.handleTTS)
		r.Post("/stt/transcribe", s.handleSTT)
	})

	r.Handle("/ws/{sessionID}", websocket.Handler(s.handleChat))
	return r
}

// cors is a hand-rolled CORS layer over the configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := len(s.cfg.AllowedOrigins) == 1 && s.cfg.AllowedOrigins[0] == "*"
	allowed := map[string]bool{}
	for _, o := range s.cfg.AllowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.processor.Service().Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "tutoring backend is running",
		"parsing": health,
	})
}

type uploadResponse struct {
	DocumentID string            `json:"document_id"`
	Filename   string            `json:"filename"`
	Result     *docparse.Result  `json:"result"`
	LessonPlan *tutor.LessonPlan `json:"lesson_plan"`
	Status     string            `json:"status"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	if !s.extensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("file type not supported, allowed: %s", strings.Join(s.cfg.AllowedExtensions, ", ")))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(content)) > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("file too large, max %d bytes", s.cfg.MaxUploadBytes))
		return
	}

	ctx := kit.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	res, err := s.processor.ProcessFile(ctx, content, header.Filename,
		header.Header.Get("Content-Type"), docparse.DefaultProcessOptions())
	if err != nil {
		s.writeProcessError(w, err)
		s.logEvent(ctx, "document", header.Filename, "upload_failed", false)
		return
	}

	plan, err := s.agent.PlanLesson(ctx, res.Content, res.FileType)
	if err != nil {
		// The document itself processed fine; surface the result without a plan.
		s.logger.Warn("lesson plan generation failed", "document_id", res.DocumentID, "error", err)
		plan = nil
	}

	s.logEvent(ctx, "document", res.DocumentID, "uploaded", true)
	writeJSON(w, http.StatusOK, uploadResponse{
		DocumentID: res.DocumentID,
		Filename:   header.Filename,
		Result:     res,
		LessonPlan: plan,
		Status:     "processed",
	})
}

type batchFileResult struct {
	Filename string                   `json:"filename"`
	Document *docparse.ParsedDocument `json:"document,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes * 4); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files provided"))
		return
	}

	items := make([]docparse.BatchItem, 0, len(files))
	for _, fh := range files {
		if !s.extensionAllowed(fh.Filename) {
			writeError(w, http.StatusBadRequest,
				fmt.Errorf("file type not supported: %s", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}
		items = append(items, docparse.BatchItem{
			Filename: fh.Filename,
			FileType: fh.Header.Get("Content-Type"),
			Content:  content,
		})
	}

	results := s.processor.Service().ProcessBatch(r.Context(), items, nil)
	out := make([]batchFileResult, len(results))
	for i, res := range results {
		out[i] = batchFileResult{Filename: res.Filename, Document: res.Document}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleProcessorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Stats())
}

func (s *Server) handleParserMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.ParserMetrics())
}

type createSessionRequest struct {
	DocumentID     string                 `json:"document_id"`
	StudentProfile session.StudentProfile `json:"student_profile"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.DocumentID == "" || req.StudentProfile.StudentID == "" {
		writeError(w, http.StatusBadRequest, errors.New("document_id and student_profile.student_id are required"))
		return
	}

	sess := s.sessions.Create(req.DocumentID, req.StudentProfile)
	s.logEvent(r.Context(), "session", sess.ID, "created", true)
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID,
		"status":     "created",
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sessions.Stats(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	profile, _ := s.sessions.Profile(sess.StudentID)

	summary, err := s.agent.Summarize(r.Context(), sess, profile)
	if err != nil {
		s.logger.Error("session summary failed", "session_id", id, "error", err)
		writeError(w, http.StatusBadGateway, errors.New("summary generation failed"))
		return
	}
	s.logEvent(r.Context(), "session", id, "summarized", true)
	writeJSON(w, http.StatusOK, summary)
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	audio, err := s.speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("tts failed", "error", err)
		writeError(w, http.StatusBadGateway, errors.New("speech synthesis failed"))
		return
	}
	s.logEvent(r.Context(), "speech", "", "synthesized", true)
	writeJSON(w, http.StatusOK, map[string]string{
		"audio_data": base64.StdEncoding.EncodeToString(audio),
		"format":     "wav",
		"language":   req.Language,
	})
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	tr, err := s.speech.Transcribe(r.Context(), file, header.Filename, "en")
	if err != nil {
		s.logger.Error("stt failed", "error", err)
		writeError(w, http.StatusBadGateway, errors.New("transcription failed"))
		return
	}
	s.logEvent(r.Context(), "speech", "", "transcribed", true)
	writeJSON(w, http.StatusOK, map[string]any{
		"transcribed_text": tr.Text,
		"confidence":       tr.Confidence,
		"language":         tr.Language,
	})
}

// writeProcessError maps pipeline errors to HTTP statuses without leaking
// internals: validation problems are the client's fault, everything else is a
// processing failure.
func (s *Server) writeProcessError(w http.ResponseWriter, err error) {
	var ve *docparse.ValidationError
	var nce *docparse.NoCompatibleParserError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve)
	case errors.As(err, &nce):
		writeError(w, http.StatusUnsupportedMediaType, nce)
	default:
		s.logger.Error("document processing failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, errors.New("failed to process document"))
	}
}

func (s *Server) extensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (s *Server) logEvent(ctx context.Context, eventType, entityID, action string, success bool) {
	if s.events == nil {
		return
	}
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  eventType,
		EntityType: eventType,
		EntityID:   entityID,
		Action:     action,
		Success:    success,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
