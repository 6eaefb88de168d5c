package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
)

type ConversationService struct {
	conversations models.ConversationRepository
	exchanges     models.ExchangeRepository
	logger        *logrus.Logger
}

func NewConversationService(conversations models.ConversationRepository, exchanges models.ExchangeRepository, logger *logrus.Logger) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		exchanges:     exchanges,
		logger:        logger,
	}
}

// List returns the caller's conversations, most recently updated first.
// A non-empty query keeps only conversations with a matching title or
// exchange.
func (s *ConversationService) List(ctx context.Context, identity *auth.Identity, query string) ([]models.Conversation, error) {
	conversations, err := s.conversations.ListForUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return conversations, nil
	}

	matched := make([]models.Conversation, 0, len(conversations))
	for _, conversation := range conversations {
		if conversationMatches(conversation, needle) {
			matched = append(matched, conversation)
		}
	}
	return matched, nil
}

func conversationMatches(c models.Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(c.Title), needle) {
		return true
	}
	for _, e := range c.Exchanges {
		if strings.Contains(strings.ToLower(e.Question), needle) || strings.Contains(strings.ToLower(e.Answer), needle) {
			return true
		}
	}
	return false
}

// Messages returns the exchanges of one conversation owned by the caller.
func (s *ConversationService) Messages(ctx context.Context, identity *auth.Identity, rawID string) ([]models.Exchange, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, invalid("id", "malformed conversation id")
	}
	if _, err := s.conversations.GetForUser(ctx, id, identity.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	exchanges, err := s.exchanges.ListByConversation(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", id).Error("Failed to load conversation messages")
		return nil, err
	}
	return exchanges, nil
}
