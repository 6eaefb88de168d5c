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
)

const maxCommentLength = 2000

type FeedbackInput struct {
	MessageID  string
	IsPositive *bool
	Reason     *string
	Comment    *string
}

type FeedbackService struct {
	exchanges models.ExchangeRepository
	feedback  models.FeedbackRepository
	logger    *logrus.Logger
	now       func() time.Time
}

func NewFeedbackService(exchanges models.ExchangeRepository, feedback models.FeedbackRepository, logger *logrus.Logger) *FeedbackService {
	return &FeedbackService{
		exchanges: exchanges,
		feedback:  feedback,
		logger:    logger,
		now:       time.Now,
	}
}

// Record stores one feedback row on one of the caller's own exchanges.
// Repeated submissions are stored as separate rows.
func (s *FeedbackService) Record(ctx context.Context, identity *auth.Identity, input FeedbackInput) (*models.Feedback, error) {
	messageID, err := uuid.Parse(strings.TrimSpace(input.MessageID))
	if err != nil {
		return nil, invalid("messageId", "malformed message id")
	}
	if input.IsPositive == nil {
		return nil, invalid("isPositive", "required")
	}

	var reason *string
	if input.Reason != nil {
		r := strings.ToLower(strings.TrimSpace(*input.Reason))
		if r != "" {
			if !models.IsValidReason(r) {
				return nil, invalid("reason", "unknown reason "+r)
			}
			reason = &r
		}
	}

	var comment *string
	if input.Comment != nil {
		c := strings.TrimSpace(*input.Comment)
		if len(c) > maxCommentLength {
			return nil, invalid("comment", "too long")
		}
		if c != "" {
			comment = &c
		}
	}

	exchange, err := s.exchanges.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Another user's exchange answers like an unknown one.
	if exchange.UserID != identity.ID {
		return nil, ErrNotFound
	}

	feedback := &models.Feedback{
		ID:         uuid.New(),
		MessageID:  messageID,
		UserID:     identity.ID,
		IsPositive: *input.IsPositive,
		Reason:     reason,
		Comment:    comment,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.feedback.Create(ctx, feedback); err != nil {
		s.logger.WithError(err).WithField("message_id", messageID).Error("Failed to save feedback")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":     identity.ID,
		"message_id":  messageID,
		"is_positive": feedback.IsPositive,
	}).Info("Feedback recorded")
	return feedback, nil
}

// Recent lists the latest feedback for the admin view.
func (s *FeedbackService) Recent(ctx context.Context, limit int) ([]models.Feedback, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.feedback.GetRecent(ctx, limit)
}
