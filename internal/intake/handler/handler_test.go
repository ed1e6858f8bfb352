package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"intake_backend/internal/intake/engine"
	"intake_backend/internal/intake/service"
	"intake_backend/internal/intake/transport"
	"intake_backend/internal/leads/domain"
	"intake_backend/internal/sessions"
	"intake_backend/internal/studies"
	"intake_backend/platform/httpkit"
	"intake_backend/platform/logger"
	"intake_backend/platform/validator"
)

const testStudyConfig = `{
  "study": {"id": "zyn", "name": "Nicotine Pouch Transition Study"},
  "messaging": {
    "greeting": "Welcome to the study!",
    "pin_failure": "We could not verify your identity. A team member will follow up.",
    "disqualification": "Unfortunately you do not qualify for this study."
  },
  "pre_screen": {
    "questions": [
      {"id": "smokes_daily", "question": "Do you smoke cigarettes daily?", "type": "yes_no", "disqualify_on": "no"}
    ]
  },
  "eligibility": {
    "inclusion": [
      {"field": "age", "operator": "between", "values": [21, 65]}
    ]
  }
}`

type memSessions struct {
	mu   sync.Mutex
	data map[string]sessions.Session
}

func newMemSessions() *memSessions {
	return &memSessions{data: make(map[string]sessions.Session)}
}

func (m *memSessions) Load(_ context.Context, id string) (*sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	copied := s
	return &copied, nil
}

func (m *memSessions) Save(_ context.Context, session *sessions.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[session.ID] = *session
	return nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "zyn"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "zyn", "config.json"), []byte(testStudyConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	log := logger.New("development")
	svc := service.New(engine.New(domain.NewMemStore(), log), newMemSessions(), studies.NewLoader(dir), log)
	h := New(svc, validator.New(), "zyn")

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1/intake"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateSessionEmptyBodyUsesDefaultStudy(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/intake/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp transport.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("sessionId is empty")
	}
	if !strings.Contains(resp.Message, "Welcome to the study!") {
		t.Errorf("message = %q, want greeting", resp.Message)
	}
}

func TestCreateSessionUnknownStudy(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/intake/sessions", `{"studyId":"nope"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestSendMessageAdvancesFlow(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/intake/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created transport.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/intake/sessions/"+created.SessionID+"/messages", `{"message":"yes"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp transport.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Step != "collecting_identity" {
		t.Errorf("step = %q, want collecting_identity", resp.Step)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/intake/sessions/missing/messages", `{"message":"hello"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestSendMessageValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":""}`},
		{"missing field", `{}`},
		{"invalid json", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/intake/sessions/any/messages", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			var errResp httpkit.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}
