package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

// ConversationRepositoryImpl implements ConversationRepository
type ConversationRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) models.ConversationRepository {
	return &ConversationRepositoryImpl{db: db}
}

func (r *ConversationRepositoryImpl) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *ConversationRepositoryImpl) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conversation).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conversation, nil
}

func (r *ConversationRepositoryImpl) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Exchanges", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *ConversationRepositoryImpl) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND created_at <= ?", id, at).
		Update("updated_at", at).Error
}

func (r *ConversationRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).Count(&count).Error
	return count, err
}

// ExchangeRepositoryImpl implements ExchangeRepository
type ExchangeRepositoryImpl struct {
	db *gorm.DB
}

func NewExchangeRepository(db *gorm.DB) models.ExchangeRepository {
	return &ExchangeRepositoryImpl{db: db}
}

func (r *ExchangeRepositoryImpl) Create(ctx context.Context, exchange *models.Exchange) error {
	return r.db.WithContext(ctx).Create(exchange).Error
}

func (r *ExchangeRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	var exchange models.Exchange
	err := r.db.WithContext(ctx).First(&exchange, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &exchange, nil
}

// Find returns exchanges matching filter, newest first, with the author's
// email when a profile exists.
func (r *ExchangeRepositoryImpl) Find(ctx context.Context, filter models.HistoryFilter) ([]models.Exchange, error) {
	query := r.db.WithContext(ctx).Model(&models.Exchange{}).
		Select("question_history.*, user_profiles.email AS user_email").
		Joins("LEFT JOIN user_profiles ON user_profiles.id = question_history.user_id")

	if filter.Start != nil {
		query = query.Where("question_history.created_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("question_history.created_at <= ?", *filter.End)
	}
	if filter.Query != "" {
		pattern := "%" + utils.EscapeLike(filter.Query) + "%"
		query = query.Where("(question_history.question ILIKE ? OR question_history.answer ILIKE ?)", pattern, pattern)
	}
	if filter.UserID != nil {
		query = query.Where("question_history.user_id = ?", *filter.UserID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var exchanges []models.Exchange
	err := query.
		Order("question_history.created_at DESC").
		Order("question_history.id DESC").
		Find(&exchanges).Error
	return exchanges, err
}

func (r *ExchangeRepositoryImpl) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Exchange, error) {
	var exchanges []models.Exchange
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&exchanges).Error
	return exchanges, err
}

func (r *ExchangeRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Exchange{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *ExchangeRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Exchange{}).Count(&count).Error
	return count, err
}

func (r *ExchangeRepositoryImpl) CountPerDaySince(ctx context.Context, since time.Time) ([]models.DailyCount, error) {
	var counts []models.DailyCount
	err := r.db.WithContext(ctx).Model(&models.Exchange{}).
		Select("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("day").
		Order("day").
		Scan(&counts).Error
	return counts, err
}

// FeedbackRepositoryImpl implements FeedbackRepository
type FeedbackRepositoryImpl struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) models.FeedbackRepository {
	return &FeedbackRepositoryImpl{db: db}
}

func (r *FeedbackRepositoryImpl) Create(ctx context.Context, feedback *models.Feedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}

func (r *FeedbackRepositoryImpl) GetRecent(ctx context.Context, limit int) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&feedback).Error
	return feedback, err
}

func (r *FeedbackRepositoryImpl) CountByPolarity(ctx context.Context) (int64, int64, error) {
	var rows []struct {
		IsPositive bool
		Count      int64
	}
	err := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Select("is_positive, COUNT(*) AS count").
		Group("is_positive").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}

	var positive, negative int64
	for _, row := range rows {
		if row.IsPositive {
			positive = row.Count
		} else {
			negative = row.Count
		}
	}
	return positive, negative, nil
}

func (r *FeedbackRepositoryImpl) CountByReason(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Reason string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Select("reason, COUNT(*) AS count").
		Where("reason IS NOT NULL").
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Reason] = row.Count
	}
	return counts, nil
}

// UserProfileRepositoryImpl implements UserProfileRepository
type UserProfileRepositoryImpl struct {
	db *gorm.DB
}

func NewUserProfileRepository(db *gorm.DB) models.UserProfileRepository {
	return &UserProfileRepositoryImpl{db: db}
}

// Touch creates the profile on first sign-in and refreshes last_seen.
func (r *UserProfileRepositoryImpl) Touch(ctx context.Context, id uuid.UUID, email string, at time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO user_profiles (id, email, questions_used, last_seen, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			email = EXCLUDED.email,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at
	`, id, email, at, at, at).Error
}

func (r *UserProfileRepositoryImpl) RecordQuestion(ctx context.Context, id uuid.UUID, email string, at time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO user_profiles (id, email, questions_used, last_question_date, last_seen, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			questions_used = user_profiles.questions_used + 1,
			email = EXCLUDED.email,
			last_question_date = EXCLUDED.last_question_date,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at
	`, id, email, at, at, at, at).Error
}

func (r *UserProfileRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

func (r *UserProfileRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserProfile{}).Count(&count).Error
	return count, err
}

func (r *UserProfileRepositoryImpl) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("last_seen >= ?", since).
		Count(&count).Error
	return count, err
}

// TurnRecorderImpl implements TurnRecorder
type TurnRecorderImpl struct {
	db *gorm.DB
}

func NewTurnRecorder(db *gorm.DB) models.TurnRecorder {
	return &TurnRecorderImpl{db: db}
}

// RecordTurn writes the conversation (when new), the exchange and the
// profile counter in one transaction, then bumps an existing
// conversation's updated_at.
func (r *TurnRecorderImpl) RecordTurn(ctx context.Context, turn *models.Turn) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if turn.Conversation != nil {
			if err := tx.Create(turn.Conversation).Error; err != nil {
				return err
			}
			turn.Exchange.ConversationID = &turn.Conversation.ID
		}

		if err := tx.Create(turn.Exchange).Error; err != nil {
			return err
		}

		profiles := NewUserProfileRepository(tx)
		if err := profiles.RecordQuestion(ctx, turn.Exchange.UserID, turn.Email, turn.At); err != nil {
			return err
		}

		if turn.Conversation == nil && turn.Exchange.ConversationID != nil {
			return NewConversationRepository(tx).Touch(ctx, *turn.Exchange.ConversationID, turn.At)
		}
		return nil
	})
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Conversations models.ConversationRepository
	Exchanges     models.ExchangeRepository
	Feedback      models.FeedbackRepository
	Profiles      models.UserProfileRepository
	Turns         models.TurnRecorder
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Conversations: NewConversationRepository(db),
		Exchanges:     NewExchangeRepository(db),
		Feedback:      NewFeedbackRepository(db),
		Profiles:      NewUserProfileRepository(db),
		Turns:         NewTurnRecorder(db),
	}
}
