package services

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
)

const (
	dateLayout      = "2006-01-02"
	topQuestionsMax = 5
)

// AdminChecker reports whether an email has admin rights.
type AdminChecker interface {
	IsAdmin(email string) bool
}

// HistoryQuery is the raw filter as received from a caller.
type HistoryQuery struct {
	Start  string
	End    string
	Query  string
	UserID string
	All    bool
}

type HistoryService struct {
	exchanges models.ExchangeRepository
	admins    AdminChecker
	logger    *logrus.Logger
}

func NewHistoryService(exchanges models.ExchangeRepository, admins AdminChecker, logger *logrus.Logger) *HistoryService {
	return &HistoryService{
		exchanges: exchanges,
		admins:    admins,
		logger:    logger,
	}
}

// Filter turns a raw query into a repository filter for identity.
// Non-admins only ever see their own rows; admins see their own unless
// they pick a user or ask for all.
func (s *HistoryService) Filter(identity *auth.Identity, q HistoryQuery) (models.HistoryFilter, error) {
	var filter models.HistoryFilter

	start, err := parseBound(q.Start, false)
	if err != nil {
		return filter, invalid("start", "expected YYYY-MM-DD or RFC3339")
	}
	end, err := parseBound(q.End, true)
	if err != nil {
		return filter, invalid("end", "expected YYYY-MM-DD or RFC3339")
	}
	if start != nil && end != nil && end.Before(*start) {
		return filter, invalid("end", "end is before start")
	}
	filter.Start = start
	filter.End = end
	filter.Query = strings.TrimSpace(q.Query)

	own := identity.ID
	if !s.admins.IsAdmin(identity.Email) {
		filter.UserID = &own
		return filter, nil
	}

	switch {
	case strings.TrimSpace(q.UserID) != "":
		id, err := uuid.Parse(strings.TrimSpace(q.UserID))
		if err != nil {
			return filter, invalid("userId", "malformed user id")
		}
		filter.UserID = &id
	case q.All:
	default:
		filter.UserID = &own
	}
	return filter, nil
}

// parseBound reads YYYY-MM-DD or RFC3339. A date-only end bound is moved to
// the last nanosecond of that day.
func parseBound(raw string, end bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if end {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// Query returns matching rows newest first, with their aggregates.
func (s *HistoryService) Query(ctx context.Context, identity *auth.Identity, q HistoryQuery) (*models.HistoryResponse, error) {
	filter, err := s.Filter(identity, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.exchanges.Find(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("History query failed")
		return nil, err
	}
	if rows == nil {
		rows = []models.Exchange{}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": identity.ID,
		"query":   filter.Query,
		"rows":    len(rows),
	}).Debug("History query completed")

	return &models.HistoryResponse{Rows: rows, Stats: Aggregate(rows)}, nil
}

// Aggregate computes totals, per-day counts and the most frequent exact
// question strings over rows.
func Aggregate(rows []models.Exchange) models.HistoryStats {
	stats := models.HistoryStats{
		TotalQuestions: len(rows),
		PerDay:         []models.DailyCount{},
		TopQuestions:   []models.TopQuestion{},
	}
	if len(rows) == 0 {
		return stats
	}

	perDay := make(map[string]int64)
	perQuestion := make(map[string]int)
	for _, row := range rows {
		perDay[row.CreatedAt.UTC().Format(dateLayout)]++
		perQuestion[row.Question]++
	}

	for day, count := range perDay {
		stats.PerDay = append(stats.PerDay, models.DailyCount{Day: day, Count: count})
	}
	sort.Slice(stats.PerDay, func(i, j int) bool {
		return stats.PerDay[i].Day < stats.PerDay[j].Day
	})

	var best models.DailyCount
	for _, day := range stats.PerDay {
		if day.Count > best.Count {
			best = day
		}
	}
	stats.MostActiveDay = best.Day
	stats.AverageQuestionsPerDay = float64(len(rows)) / float64(len(stats.PerDay))

	for question, count := range perQuestion {
		stats.TopQuestions = append(stats.TopQuestions, models.TopQuestion{Question: question, Count: count})
	}
	sort.Slice(stats.TopQuestions, func(i, j int) bool {
		a, b := stats.TopQuestions[i], stats.TopQuestions[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Question < b.Question
	})
	if len(stats.TopQuestions) > topQuestionsMax {
		stats.TopQuestions = stats.TopQuestions[:topQuestionsMax]
	}
	return stats
}

var csvHeader = []string{"id", "created_at", "user_id", "user_email", "conversation_id", "question", "answer"}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []models.Exchange) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		conversation := ""
		if row.ConversationID != nil {
			conversation = row.ConversationID.String()
		}
		record := []string{
			row.ID.String(),
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.UserID.String(),
			csvCell(row.UserEmail),
			conversation,
			csvCell(row.Question),
			csvCell(row.Answer),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell keeps spreadsheet applications from evaluating user text as a
// formula.
func csvCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
