package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/websocket"

	"github.com/edulingo/edulingo/docparse"
	"github.com/edulingo/edulingo/session"
	"github.com/edulingo/edulingo/speech"
	"github.com/edulingo/edulingo/tutor"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.Default()
	srv := NewServer(Config{Logger: logger},
		docparse.NewProcessor(docparse.ProcessorConfig{Logger: logger}),
		session.NewStore(session.Config{Logger: logger}),
		tutor.NewAgent(tutor.Config{Logger: logger}),
		speech.NewService(speech.Config{Logger: logger}),
		nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func multipartFile(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if msg, _ := body["message"].(string); msg == "" {
		t.Error("missing message")
	}
}

func TestUploadDocument(t *testing.T) {
	_, ts := newTestServer(t)
	content := []byte("Greetings and Introductions. Students practice saying hello and introducing themselves politely.")
	buf, ctype := multipartFile(t, "file", "lesson.txt", content)

	resp, err := http.Post(ts.URL+"/api/documents/upload", ctype, buf)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, b)
	}

	var body uploadResponse
	decodeBody(t, resp, &body)
	if !strings.HasPrefix(body.DocumentID, "doc_") {
		t.Errorf("document_id = %q", body.DocumentID)
	}
	if body.Status != "processed" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Filename != "lesson.txt" {
		t.Errorf("filename = %q", body.Filename)
	}
	if body.LessonPlan == nil || len(body.LessonPlan.Objectives) == 0 {
		t.Errorf("lesson plan = %+v", body.LessonPlan)
	}
	if body.Result == nil || !strings.Contains(body.Result.Content, "Greetings") {
		t.Error("result content missing")
	}
}

func TestUploadRejectsExtension(t *testing.T) {
	_, ts := newTestServer(t)
	buf, ctype := multipartFile(t, "file", "payload.exe", []byte("MZ"))
	resp, err := http.Post(ts.URL+"/api/documents/upload", ctype, buf)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/documents/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadTooLarge(t *testing.T) {
	logger := slog.Default()
	srv := NewServer(Config{MaxUploadBytes: 64, Logger: logger},
		docparse.NewProcessor(docparse.ProcessorConfig{Logger: logger}),
		session.NewStore(session.Config{Logger: logger}),
		tutor.NewAgent(tutor.Config{Logger: logger}),
		speech.NewService(speech.Config{Logger: logger}),
		nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	buf, ctype := multipartFile(t, "file", "big.txt", bytes.Repeat([]byte("a"), 128))
	resp, err := http.Post(ts.URL+"/api/documents/upload", ctype, buf)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body := `{"document_id": "doc_1", "student_profile": {"student_id": "stu_1", "name": "Ana", "level": "beginner"}}`
	resp, err := http.Post(ts.URL+"/api/sessions/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST sessions: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out map[string]string
	decodeBody(t, resp, &out)
	if !strings.HasPrefix(out["session_id"], "sess_") {
		t.Fatalf("session_id = %q", out["session_id"])
	}
	if out["status"] != "created" {
		t.Fatalf("status = %q", out["status"])
	}
	return out["session_id"]
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	resp, err := http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var sess session.Session
	decodeBody(t, resp, &sess)
	if sess.DocumentID != "doc_1" || sess.StudentID != "stu_1" {
		t.Errorf("session = %+v", sess)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/" + id + "/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats session.Stats
	decodeBody(t, resp, &stats)
	if stats.TotalMessages != 0 {
		t.Errorf("messages = %d", stats.TotalMessages)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/sessions/sess_missing")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/sessions/", "application/json", strings.NewReader(`{"document_id": ""}`))
	if err != nil {
		t.Fatalf("POST sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionSummary(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/api/sessions/"+id+"/summary", "application/json", nil)
	if err != nil {
		t.Fatalf("POST summary: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var summary tutor.Summary
	decodeBody(t, resp, &summary)
	if summary.SessionID != id {
		t.Errorf("session_id = %q", summary.SessionID)
	}
	if summary.Feedback == "" {
		t.Error("missing feedback")
	}
}

func TestTTS(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/tts/synthesize", "application/json",
		strings.NewReader(`{"text": "Hello student", "language": "en-US"}`))
	if err != nil {
		t.Fatalf("POST tts: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["format"] != "wav" {
		t.Errorf("format = %q", body["format"])
	}
	if body["language"] != "en-US" {
		t.Errorf("language = %q", body["language"])
	}
	audio, err := base64.StdEncoding.DecodeString(body["audio_data"])
	if err != nil {
		t.Fatalf("audio_data not base64: %v", err)
	}
	if !bytes.HasPrefix(audio, []byte("RIFF")) {
		t.Error("audio is not WAV")
	}
}

func TestTTSEmptyText(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/tts/synthesize", "application/json", strings.NewReader(`{"text": ""}`))
	if err != nil {
		t.Fatalf("POST tts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSTT(t *testing.T) {
	_, ts := newTestServer(t)
	buf, ctype := multipartFile(t, "file", "speech.wav", []byte("RIFFfake"))
	resp, err := http.Post(ts.URL+"/api/stt/transcribe", ctype, buf)
	if err != nil {
		t.Fatalf("POST stt: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if text, _ := body["transcribed_text"].(string); text == "" {
		t.Error("missing transcribed_text")
	}
	if body["language"] != "en" {
		t.Errorf("language = %v", body["language"])
	}
}

func TestProcessorStatsAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/documents/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats docparse.ProcessorStats
	decodeBody(t, resp, &stats)
	if len(stats.AvailableParsers) == 0 {
		t.Error("no parsers reported")
	}

	resp, err = http.Get(ts.URL + "/api/documents/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestBatchUpload(t *testing.T) {
	_, ts := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte("Practice sentence for " + name))
	}
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/documents/batch", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST batch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Results []batchFileResult `json:"results"`
	}
	decodeBody(t, resp, &body)
	if len(body.Results) != 2 {
		t.Fatalf("results = %d", len(body.Results))
	}
	for _, res := range body.Results {
		if res.Error != "" {
			t.Errorf("%s: %s", res.Filename, res.Error)
		}
		if res.Document == nil {
			t.Errorf("%s: missing document", res.Filename)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/sessions/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func dialWS(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + sessionID
	ws, err := websocket.Dial(wsURL, "", ts.URL)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestChatUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialWS(t, ts, "sess_missing")

	var out wsError
	if err := websocket.JSON.Receive(ws, &out); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if out.Error != "Session not found" {
		t.Errorf("error = %q", out.Error)
	}
}

func TestChatExchange(t *testing.T) {
	srv, ts := newTestServer(t)
	id := createSession(t, ts)
	ws := dialWS(t, ts, id)

	if err := websocket.JSON.Send(ws, chatMessage{Type: "chat", Content: "Hello teacher"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var out chatResponse
	if err := websocket.JSON.Receive(ws, &out); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if out.Type != "chat_response" {
		t.Errorf("type = %q", out.Type)
	}
	if out.Content == "" {
		t.Error("empty reply")
	}
	if out.Timestamp.IsZero() {
		t.Error("missing timestamp")
	}

	sess, err := srv.sessions.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(sess.Messages))
	}
	if sess.Messages[0].Role != "user" || sess.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", sess.Messages[0].Role, sess.Messages[1].Role)
	}
}

func TestChatIgnoresOtherFrameTypes(t *testing.T) {
	srv, ts := newTestServer(t)
	id := createSession(t, ts)
	ws := dialWS(t, ts, id)

	if err := websocket.JSON.Send(ws, chatMessage{Type: "ping"}); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	if err := websocket.JSON.Send(ws, chatMessage{Type: "chat", Content: "Still here"}); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	var out chatResponse
	if err := websocket.JSON.Receive(ws, &out); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if out.Type != "chat_response" {
		t.Errorf("type = %q", out.Type)
	}

	sess, _ := srv.sessions.Get(id)
	if len(sess.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(sess.Messages))
	}
}
