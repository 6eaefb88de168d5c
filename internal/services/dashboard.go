package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coldorg/coldbot/backend/internal/database"
	"github.com/coldorg/coldbot/backend/internal/models"
)

const (
	dashboardCacheTTL = time.Minute
	activityWindow    = 7 * 24 * time.Hour
)

type DashboardService struct {
	repos  *DashboardRepositories
	cache  *database.Cache
	logger *logrus.Logger
	now    func() time.Time
}

// DashboardRepositories are the stores the admin dashboard reads.
type DashboardRepositories struct {
	Conversations models.ConversationRepository
	Exchanges     models.ExchangeRepository
	Feedback      models.FeedbackRepository
	Profiles      models.UserProfileRepository
}

func NewDashboardService(repos *DashboardRepositories, cache *database.Cache, logger *logrus.Logger) *DashboardService {
	return &DashboardService{
		repos:  repos,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Stats returns the admin aggregates, cached for a minute when redis is
// available.
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats
	err := s.cache.Remember(ctx, database.DashboardStatsKey, dashboardCacheTTL, &stats, func(ctx context.Context) (interface{}, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *DashboardService) load(ctx context.Context) (*models.DashboardStats, error) {
	now := s.now().UTC()
	since := now.Add(-activityWindow)
	stats := &models.DashboardStats{GeneratedAt: now}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalUsers, err = s.repos.Profiles.Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveUsers, err = s.repos.Profiles.CountActiveSince(ctx, since)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalConversations, err = s.repos.Conversations.Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalQuestions, err = s.repos.Exchanges.Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.PositiveFeedback, stats.NegativeFeedback, err = s.repos.Feedback.CountByPolarity(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.FeedbackByReason, err = s.repos.Feedback.CountByReason(ctx)
		return err
	})
	g.Go(func() error {
		days, err := s.repos.Exchanges.CountPerDaySince(ctx, startOfDay(now).Add(-6*24*time.Hour))
		if err != nil {
			return err
		}
		stats.LastWeek = fillDays(days, now, 7)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Error("Failed to load dashboard stats")
		return nil, err
	}
	if stats.FeedbackByReason == nil {
		stats.FeedbackByReason = map[string]int64{}
	}
	return stats, nil
}

// DeleteExchange removes one exchange and its feedback, then drops the
// cached aggregates.
func (s *DashboardService) DeleteExchange(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return invalid("id", "malformed exchange id")
	}
	if err := s.repos.Exchanges.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.cache.Delete(ctx, database.DashboardStatsKey); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate dashboard cache")
	}
	s.logger.WithField("exchange_id", id).Info("Exchange deleted")
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// fillDays returns one entry per day for the n days ending today, oldest
// first, with zero for days without rows.
func fillDays(days []models.DailyCount, now time.Time, n int) []models.DailyCount {
	counts := make(map[string]int64, len(days))
	for _, d := range days {
		counts[d.Day] = d.Count
	}
	out := make([]models.DailyCount, 0, n)
	first := startOfDay(now).Add(-time.Duration(n-1) * 24 * time.Hour)
	for i := 0; i < n; i++ {
		day := first.Add(time.Duration(i) * 24 * time.Hour).Format(dateLayout)
		out = append(out, models.DailyCount{Day: day, Count: counts[day]})
	}
	return out
}
