package models

// GORM models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("record not found")

// JSONMap for PostgreSQL jsonb support
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal JSONMap: %w", err)
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	fresh := JSONMap{}
	if err := json.Unmarshal(data, &fresh); err != nil {
		return err
	}
	*m = fresh
	return nil
}

// Feedback reasons accepted on negative feedback.
const (
	ReasonIncomplete = "incomplete"
	ReasonIncorrect  = "incorrect"
	ReasonUnclear    = "unclear"
	ReasonIrrelevant = "irrelevant"
	ReasonOutdated   = "outdated"
	ReasonUnknown    = "unknown"
	ReasonOther      = "other"
)

var validReasons = map[string]bool{
	ReasonIncomplete: true,
	ReasonIncorrect:  true,
	ReasonUnclear:    true,
	ReasonIrrelevant: true,
	ReasonOutdated:   true,
	ReasonUnknown:    true,
	ReasonOther:      true,
}

func IsValidReason(reason string) bool {
	return validReasons[reason]
}

// Conversation groups the exchanges of one user.
type Conversation struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Title     string    `json:"title" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	Exchanges []Exchange `json:"exchanges,omitempty" gorm:"foreignKey:ConversationID;constraint:OnDelete:SET NULL"`
}

// Exchange is one question/answer round trip.
type Exchange struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	ConversationID *uuid.UUID `json:"conversation_id" gorm:"type:uuid;index"`
	Question       string     `json:"question" gorm:"type:text;not null"`
	Answer         string     `json:"answer" gorm:"type:text;not null"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`

	// Filled by history queries from user_profiles.
	UserEmail string `json:"user_email,omitempty" gorm:"->;-:migration"`
}

// Feedback is a like or dislike on an exchange.
type Feedback struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	MessageID  uuid.UUID `json:"message_id" gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	IsPositive bool      `json:"is_positive" gorm:"not null"`
	Reason     *string   `json:"reason" gorm:"type:varchar(32)"`
	Comment    *string   `json:"comment" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`

	// Associations
	Exchange *Exchange `json:"-" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// UserProfile is the denormalized usage row kept per identity.
type UserProfile struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email            string     `json:"email" gorm:"type:text;not null"`
	Role             *string    `json:"role"`
	Company          *string    `json:"company"`
	QuestionsUsed    int        `json:"questions_used" gorm:"default:0"`
	LastQuestionDate *time.Time `json:"last_question_date"`
	LastSeen         *time.Time `json:"last_seen"`
	Metadata         JSONMap    `json:"metadata" gorm:"type:jsonb"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HistoryFilter selects exchanges. Nil bounds are open; both bounds are
// inclusive.
type HistoryFilter struct {
	Start  *time.Time
	End    *time.Time
	Query  string
	UserID *uuid.UUID
	Limit  int
}

// DailyCount is a number of rows on one UTC day (YYYY-MM-DD).
type DailyCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Turn is everything written for one chat round trip. Conversation is set
// when the turn starts a new conversation.
type Turn struct {
	Email        string
	Conversation *Conversation
	Exchange     *Exchange
	At           time.Time
}

// Database interfaces for repository pattern
type ConversationRepository interface {
	Create(ctx context.Context, conversation *Conversation) error
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

type ExchangeRepository interface {
	Create(ctx context.Context, exchange *Exchange) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exchange, error)
	Find(ctx context.Context, filter HistoryFilter) ([]Exchange, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Exchange, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
	CountPerDaySince(ctx context.Context, since time.Time) ([]DailyCount, error)
}

type FeedbackRepository interface {
	Create(ctx context.Context, feedback *Feedback) error
	GetRecent(ctx context.Context, limit int) ([]Feedback, error)
	CountByPolarity(ctx context.Context) (positive, negative int64, err error)
	CountByReason(ctx context.Context) (map[string]int64, error)
}

type UserProfileRepository interface {
	Touch(ctx context.Context, id uuid.UUID, email string, at time.Time) error
	RecordQuestion(ctx context.Context, id uuid.UUID, email string, at time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*UserProfile, error)
	Count(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

// TurnRecorder persists a chat turn atomically.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, turn *Turn) error
}

// TableName methods for custom table names
func (Conversation) TableName() string { return "conversations" }
func (Exchange) TableName() string     { return "question_history" }
func (Feedback) TableName() string     { return "message_feedback" }
func (UserProfile) TableName() string  { return "user_profiles" }

// Model validation methods
func (c *Conversation) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !c.CreatedAt.IsZero() && c.UpdatedAt.Before(c.CreatedAt) {
		return fmt.Errorf("updated_at cannot be before created_at")
	}
	return nil
}

func (e *Exchange) Validate() error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(e.Question) == "" {
		return fmt.Errorf("question is required")
	}
	return nil
}

func (f *Feedback) Validate() error {
	if f.MessageID == uuid.Nil {
		return fmt.Errorf("message ID is required")
	}
	if f.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if f.Reason != nil && !IsValidReason(*f.Reason) {
		return fmt.Errorf("invalid feedback reason: %s", *f.Reason)
	}
	return nil
}

// GORM hooks
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return c.Validate()
}

func (e *Exchange) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return e.Validate()
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return f.Validate()
}
