package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldorg/coldbot/backend/internal/access"
	"github.com/coldorg/coldbot/backend/internal/api/handlers"
	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/database"
	"github.com/coldorg/coldbot/backend/internal/health"
	"github.com/coldorg/coldbot/backend/internal/middleware"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/internal/ratelimit"
	"github.com/coldorg/coldbot/backend/internal/services"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

// tokenSessions maps bearer tokens to identities.
type tokenSessions map[string]*auth.Identity

func (s tokenSessions) Current(r *http.Request) (*auth.Identity, error) {
	identity, ok := s[auth.TokenFromRequest(r)]
	if !ok {
		return nil, auth.ErrNoSession
	}
	return identity, nil
}

type memTurns struct {
	mu        sync.Mutex
	exchanges []models.Exchange
}

func (m *memTurns) RecordTurn(_ context.Context, turn *models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, *turn.Exchange)
	return nil
}

func (m *memTurns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

type noConversations struct{ models.ConversationRepository }

func (noConversations) GetForUser(context.Context, uuid.UUID, uuid.UUID) (*models.Conversation, error) {
	return nil, models.ErrNotFound
}

type fixedPredictor string

func (p fixedPredictor) Predict(context.Context, string) (string, error) { return string(p), nil }

type testServer struct {
	router *gin.Engine
	turns  *memTurns
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := utils.DiscardLogger()

	admins := access.NewAdminList([]string{"boss@example.com"})
	sessions := tokenSessions{
		"user-token":  {ID: uuid.New(), Email: "user@example.com"},
		"admin-token": {ID: uuid.New(), Email: "boss@example.com"},
	}
	turns := &memTurns{}
	limiter := ratelimit.NewInMemory(10, time.Minute)
	chat := services.NewChatService(fixedPredictor("Une amende de classe 3 coûte 68 euros."), limiter, noConversations{}, turns, logger)
	checker := health.NewHealthChecker(database.NewCache(nil, logger), logger,
		health.Probe{Name: "postgresql", Critical: true, Check: func(context.Context) error { return nil }})

	router := NewRouter(&Dependencies{
		Sessions:    sessions,
		Admins:      admins,
		Gate:        middleware.NewGate(middleware.DefaultGateConfig(), admins, logger),
		AuthLimiter: ratelimit.NewInMemory(5, time.Minute),
		Chat:        handlers.NewChatHandler(chat, logger),
		Admin:       handlers.NewAdminHandler(sessions, admins, nil, nil, logger),
		Feedback:    handlers.NewFeedbackHandler(nil, logger),
		History:     handlers.NewHistoryHandler(nil, nil, logger),
		Auth:        handlers.NewAuthHandler(nil, nil, nil, admins, "http://localhost:8080", auth.CookieOptions{}, logger),
		Meta:        handlers.NewMetaHandler(checker, "", ""),
		Logger:      logger,
	})
	return &testServer{router: router, turns: turns}
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRouter_PageGate(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/", "", "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/login?redirectTo=/", w.Header().Get("Location"))

	w = s.do("GET", "/admin", "user-token", "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.do("GET", "/admin", "admin-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = s.do("GET", "/login", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do("GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ChatRoundTrip(t *testing.T) {
	s := newTestServer(t)

	w := s.do("POST", "/api/chatbot", "", `{"message":"hello"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	question := "Quel est le prix d'une amende de classe 3 ?"
	w = s.do("POST", "/api/chatbot", "user-token", `{"message":"`+question+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Une amende de classe 3 coûte 68 euros.", resp.Text)
	assert.NotEmpty(t, resp.ConversationID)

	require.Equal(t, 1, s.turns.count())
	assert.Equal(t, question, s.turns.exchanges[0].Question)
	assert.Equal(t, resp.Text, s.turns.exchanges[0].Answer)
}

func TestRouter_EleventhChatIsRejected(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 10; i++ {
		w := s.do("POST", "/api/chatbot", "user-token", `{"message":"question"}`)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := s.do("POST", "/api/chatbot", "user-token", `{"message":"question"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 10, s.turns.count())
}

func TestRouter_AdminAPI(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/api/admin/stats", "user-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do("GET", "/api/check-admin", "admin-token", "")
	assert.JSONEq(t, `{"isAdmin":true,"email":"boss@example.com"}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
