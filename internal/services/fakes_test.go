package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
)

// store is an in-memory stand-in for the gorm repositories.
type store struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	exchanges     []models.Exchange
	feedback      []models.Feedback
	questions     map[uuid.UUID]int
	failTurns     error
	failCounts    error
}

func newStore() *store {
	return &store{
		conversations: make(map[uuid.UUID]*models.Conversation),
		questions:     make(map[uuid.UUID]int),
	}
}

type conversationRepo struct{ s *store }
type exchangeRepo struct{ s *store }
type feedbackRepo struct{ s *store }
type profileRepo struct{ s *store }
type turnRecorder struct{ s *store }

func (r conversationRepo) Create(_ context.Context, c *models.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *c
	r.s.conversations[c.ID] = &copied
	return nil
}

func (r conversationRepo) GetForUser(_ context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, models.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r conversationRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Conversation
	for _, c := range r.s.conversations {
		if c.UserID != userID {
			continue
		}
		copied := *c
		for _, e := range r.s.exchanges {
			if e.ConversationID != nil && *e.ConversationID == c.ID {
				copied.Exchanges = append(copied.Exchanges, e)
			}
		}
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r conversationRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.conversations[id]; ok && !at.Before(c.CreatedAt) {
		c.UpdatedAt = at
	}
	return nil
}

func (r conversationRepo) Count(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.conversations)), r.s.failCounts
}

func (r exchangeRepo) Create(_ context.Context, e *models.Exchange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.exchanges = append(r.s.exchanges, *e)
	return nil
}

func (r exchangeRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.exchanges {
		if e.ID == id {
			copied := e
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r exchangeRepo) Find(_ context.Context, f models.HistoryFilter) ([]models.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	needle := strings.ToLower(f.Query)
	var out []models.Exchange
	for _, e := range r.s.exchanges {
		if f.Start != nil && e.CreatedAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && e.CreatedAt.After(*f.End) {
			continue
		}
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Question), needle) && !strings.Contains(strings.ToLower(e.Answer), needle) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r exchangeRepo) ListByConversation(_ context.Context, id uuid.UUID) ([]models.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Exchange
	for _, e := range r.s.exchanges {
		if e.ConversationID != nil && *e.ConversationID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r exchangeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, e := range r.s.exchanges {
		if e.ID == id {
			r.s.exchanges = append(r.s.exchanges[:i], r.s.exchanges[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (r exchangeRepo) Count(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.exchanges)), nil
}

func (r exchangeRepo) CountPerDaySince(_ context.Context, since time.Time) ([]models.DailyCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int64{}
	for _, e := range r.s.exchanges {
		if !e.CreatedAt.Before(since) {
			counts[e.CreatedAt.UTC().Format(dateLayout)]++
		}
	}
	var out []models.DailyCount
	for day, n := range counts {
		out = append(out, models.DailyCount{Day: day, Count: n})
	}
	return out, nil
}

func (r feedbackRepo) Create(_ context.Context, f *models.Feedback) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.feedback = append(r.s.feedback, *f)
	return nil
}

func (r feedbackRepo) GetRecent(_ context.Context, limit int) ([]models.Feedback, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]models.Feedback(nil), r.s.feedback...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r feedbackRepo) CountByPolarity(context.Context) (int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pos, neg int64
	for _, f := range r.s.feedback {
		if f.IsPositive {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg, nil
}

func (r feedbackRepo) CountByReason(context.Context) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]int64{}
	for _, f := range r.s.feedback {
		if f.Reason != nil {
			out[*f.Reason]++
		}
	}
	return out, nil
}

func (r profileRepo) Touch(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (r profileRepo) RecordQuestion(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.questions[id]++
	return nil
}

func (r profileRepo) GetByID(context.Context, uuid.UUID) (*models.UserProfile, error) {
	return nil, models.ErrNotFound
}

func (r profileRepo) Count(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.questions)), nil
}

func (r profileRepo) CountActiveSince(context.Context, time.Time) (int64, error) {
	return r.Count(context.Background())
}

func (r turnRecorder) RecordTurn(ctx context.Context, turn *models.Turn) error {
	if r.s.failTurns != nil {
		return r.s.failTurns
	}
	if turn.Conversation != nil {
		_ = conversationRepo{r.s}.Create(ctx, turn.Conversation)
		turn.Exchange.ConversationID = &turn.Conversation.ID
	}
	_ = exchangeRepo{r.s}.Create(ctx, turn.Exchange)
	_ = profileRepo{r.s}.RecordQuestion(ctx, turn.Exchange.UserID, turn.Email, turn.At)
	if turn.Conversation == nil && turn.Exchange.ConversationID != nil {
		_ = conversationRepo{r.s}.Touch(ctx, *turn.Exchange.ConversationID, turn.At)
	}
	return nil
}

func (s *store) exchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges)
}

type stubPredictor struct {
	mu       sync.Mutex
	answer   string
	err      error
	received []string
}

func (p *stubPredictor) Predict(_ context.Context, question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, question)
	return p.answer, p.err
}

func (p *stubPredictor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

var errBoom = errors.New("boom")

func newIdentity(email string) *auth.Identity {
	return &auth.Identity{ID: uuid.New(), Email: email}
}
