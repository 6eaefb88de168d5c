package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/internal/ratelimit"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

// Predictor answers a question. *prediction.Client implements it.
type Predictor interface {
	Predict(ctx context.Context, question string) (string, error)
}

type ChatInput struct {
	Message        string
	ConversationID string
}

type ChatResult struct {
	Text           string
	ConversationID *uuid.UUID
	MessageID      *uuid.UUID
}

type ChatService struct {
	predictor     Predictor
	limiter       ratelimit.Limiter
	conversations models.ConversationRepository
	turns         models.TurnRecorder
	logger        *logrus.Logger
	now           func() time.Time
}

func NewChatService(
	predictor Predictor,
	limiter ratelimit.Limiter,
	conversations models.ConversationRepository,
	turns models.TurnRecorder,
	logger *logrus.Logger,
) *ChatService {
	return &ChatService{
		predictor:     predictor,
		limiter:       limiter,
		conversations: conversations,
		turns:         turns,
		logger:        logger,
		now:           time.Now,
	}
}

// RateLimitKey is the limiter key for one identity's chat calls.
func RateLimitKey(userID uuid.UUID) string {
	return "chat:" + userID.String()
}

// Ask runs one chat round trip for identity. A failure to persist the turn
// is logged and the answer is still returned.
func (s *ChatService) Ask(ctx context.Context, identity *auth.Identity, input ChatInput) (*ChatResult, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, invalid("message", "Please provide a message")
	}

	var existing *models.Conversation
	if raw := strings.TrimSpace(input.ConversationID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, invalid("conversationId", "malformed conversation id")
		}
		existing, err = s.conversations.GetForUser(ctx, id, identity.ID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
	}

	decision := s.limiter.Allow(ctx, RateLimitKey(identity.ID))
	if !decision.Allowed {
		s.logger.WithFields(logrus.Fields{
			"user_id": identity.ID,
			"count":   decision.Count,
			"limit":   decision.Limit,
		}).Warn("Chat rate limit exceeded")
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter(s.now())}
	}

	start := s.now()
	answer, err := s.predictor.Predict(ctx, message)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  identity.ID,
			"duration": time.Since(start).String(),
		}).Error("Prediction request failed")
		return nil, ErrUpstreamUnavailable
	}

	at := s.now().UTC()
	turn := &models.Turn{
		Email: identity.Email,
		At:    at,
		Exchange: &models.Exchange{
			ID:        uuid.New(),
			UserID:    identity.ID,
			Question:  message,
			Answer:    answer,
			CreatedAt: at,
		},
	}
	if existing != nil {
		turn.Exchange.ConversationID = &existing.ID
	} else {
		turn.Conversation = &models.Conversation{
			ID:        uuid.New(),
			UserID:    identity.ID,
			Title:     utils.ConversationTitle(message),
			CreatedAt: at,
			UpdatedAt: at,
		}
		turn.Exchange.ConversationID = &turn.Conversation.ID
	}

	result := &ChatResult{Text: answer}
	if err := s.turns.RecordTurn(ctx, turn); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":         identity.ID,
			"conversation_id": turn.Exchange.ConversationID,
		}).Error("Failed to record chat turn")
		if existing != nil {
			result.ConversationID = &existing.ID
		}
		return result, nil
	}

	result.ConversationID = turn.Exchange.ConversationID
	result.MessageID = &turn.Exchange.ID

	s.logger.WithFields(logrus.Fields{
		"user_id":         identity.ID,
		"conversation_id": result.ConversationID,
		"message_id":      turn.Exchange.ID,
		"duration":        time.Since(start).String(),
	}).Info("Chat turn completed")

	return result, nil
}
