package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/internal/ratelimit"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newChat(t *testing.T, predictor Predictor) (*ChatService, *store, *clock) {
	t.Helper()
	s := newStore()
	clk := &clock{now: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewInMemory(10, time.Minute, ratelimit.WithClock(clk.Now))
	svc := NewChatService(predictor, limiter, conversationRepo{s}, turnRecorder{s}, utils.DiscardLogger())
	svc.now = clk.Now
	return svc, s, clk
}

func TestChat_AnswerIsPersisted(t *testing.T) {
	predictor := &stubPredictor{answer: "Une amende de classe 3 coûte 68 euros."}
	svc, s, _ := newChat(t, predictor)
	identity := newIdentity("user@example.com")
	question := "Quel est le prix d'une amende de classe 3 ?"

	result, err := svc.Ask(context.Background(), identity, ChatInput{Message: "  " + question + "\n"})
	require.NoError(t, err)

	assert.Equal(t, predictor.answer, result.Text)
	require.NotNil(t, result.ConversationID)
	require.NotNil(t, result.MessageID)
	assert.Equal(t, []string{question}, predictor.received)

	require.Equal(t, 1, s.exchangeCount())
	stored := s.exchanges[0]
	assert.Equal(t, question, stored.Question)
	assert.Equal(t, predictor.answer, stored.Answer)
	assert.Equal(t, *result.MessageID, stored.ID)
	assert.Equal(t, identity.ID, stored.UserID)

	conversation := s.conversations[*result.ConversationID]
	require.NotNil(t, conversation)
	assert.Equal(t, question, conversation.Title)
	assert.Equal(t, 1, s.questions[identity.ID])
}

func TestChat_ContinuesOwnedConversation(t *testing.T) {
	svc, s, clk := newChat(t, &stubPredictor{answer: "ok"})
	identity := newIdentity("user@example.com")

	first, err := svc.Ask(context.Background(), identity, ChatInput{Message: "bonjour"})
	require.NoError(t, err)

	clk.Advance(time.Second)
	second, err := svc.Ask(context.Background(), identity, ChatInput{Message: "encore", ConversationID: first.ConversationID.String()})
	require.NoError(t, err)

	assert.Equal(t, *first.ConversationID, *second.ConversationID)
	assert.Len(t, s.conversations, 1)
	conversation := s.conversations[*first.ConversationID]
	assert.False(t, conversation.UpdatedAt.Before(conversation.CreatedAt))
	assert.Equal(t, clk.Now(), conversation.UpdatedAt)
}

func TestChat_RejectsForeignOrMalformedConversation(t *testing.T) {
	predictor := &stubPredictor{answer: "ok"}
	svc, _, _ := newChat(t, predictor)
	owner := newIdentity("owner@example.com")
	other := newIdentity("other@example.com")

	first, err := svc.Ask(context.Background(), owner, ChatInput{Message: "hello"})
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), other, ChatInput{Message: "hi", ConversationID: first.ConversationID.String()})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Ask(context.Background(), other, ChatInput{Message: "hi", ConversationID: "not-a-uuid"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, predictor.calls())
}

func TestChat_EmptyMessage(t *testing.T) {
	predictor := &stubPredictor{answer: "ok"}
	svc, s, _ := newChat(t, predictor)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := svc.Ask(context.Background(), newIdentity("u@example.com"), ChatInput{Message: msg})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "message", verr.Field)
	}
	assert.Zero(t, predictor.calls())
	assert.Zero(t, s.exchangeCount())
}

func TestChat_EleventhRequestIsRateLimited(t *testing.T) {
	predictor := &stubPredictor{answer: "ok"}
	svc, s, clk := newChat(t, predictor)
	identity := newIdentity("user@example.com")

	for i := 0; i < 10; i++ {
		_, err := svc.Ask(context.Background(), identity, ChatInput{Message: "question"})
		require.NoError(t, err, "request %d", i+1)
		clk.Advance(time.Second)
	}

	_, err := svc.Ask(context.Background(), identity, ChatInput{Message: "question"})
	var rlErr *RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 50*time.Second, rlErr.RetryAfter)
	assert.Equal(t, 10, s.exchangeCount())
	assert.Equal(t, 10, predictor.calls())

	// another identity has its own counter
	_, err = svc.Ask(context.Background(), newIdentity("other@example.com"), ChatInput{Message: "question"})
	assert.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = svc.Ask(context.Background(), identity, ChatInput{Message: "question"})
	assert.NoError(t, err)
}

func TestChat_UpstreamFailure(t *testing.T) {
	svc, s, _ := newChat(t, &stubPredictor{err: errors.New("dial tcp: connection refused")})

	_, err := svc.Ask(context.Background(), newIdentity("u@example.com"), ChatInput{Message: "hello"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.NotContains(t, err.Error(), "connection refused")
	assert.Zero(t, s.exchangeCount())
}

func TestChat_PersistenceFailureStillAnswers(t *testing.T) {
	svc, s, _ := newChat(t, &stubPredictor{answer: "réponse"})
	identity := newIdentity("u@example.com")

	first, err := svc.Ask(context.Background(), identity, ChatInput{Message: "hello"})
	require.NoError(t, err)

	s.failTurns = errBoom

	result, err := svc.Ask(context.Background(), identity, ChatInput{Message: "new topic"})
	require.NoError(t, err)
	assert.Equal(t, "réponse", result.Text)
	assert.Nil(t, result.ConversationID)
	assert.Nil(t, result.MessageID)

	result, err = svc.Ask(context.Background(), identity, ChatInput{Message: "again", ConversationID: first.ConversationID.String()})
	require.NoError(t, err)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, *first.ConversationID, *result.ConversationID)
}

func TestChat_LongMessageTitle(t *testing.T) {
	svc, s, _ := newChat(t, &stubPredictor{answer: "ok"})
	message := strings.Repeat("é", 100)

	result, err := svc.Ask(context.Background(), newIdentity("u@example.com"), ChatInput{Message: message})
	require.NoError(t, err)
	title := s.conversations[*result.ConversationID].Title
	assert.Equal(t, utils.ConversationTitle(message), title)
	assert.LessOrEqual(t, len([]rune(title)), 63)
}

func TestRateLimitKey(t *testing.T) {
	id := uuid.MustParse("9b2d9b4e-3b1e-4a51-9c8a-3c5f0c7b1a10")
	assert.Equal(t, "chat:9b2d9b4e-3b1e-4a51-9c8a-3c5f0c7b1a10", RateLimitKey(id))
}

var _ models.TurnRecorder = turnRecorder{}
