package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldorg/coldbot/backend/internal/access"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

func seedExchange(s *store, userID uuid.UUID, question, answer string, at time.Time) models.Exchange {
	e := models.Exchange{ID: uuid.New(), UserID: userID, Question: question, Answer: answer, CreatedAt: at}
	s.exchanges = append(s.exchanges, e)
	return e
}

func newHistory(s *store) *HistoryService {
	return NewHistoryService(exchangeRepo{s}, access.NewAdminList([]string{"admin@example.com"}), utils.DiscardLogger())
}

func day(d, h int) time.Time {
	return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC)
}

func TestHistory_NonAdminSeesOnlyOwnRows(t *testing.T) {
	s := newStore()
	user := newIdentity("user@example.com")
	other := newIdentity("other@example.com")
	seedExchange(s, user.ID, "mine", "a", day(1, 10))
	seedExchange(s, other.ID, "theirs", "b", day(1, 11))

	svc := newHistory(s)
	resp, err := svc.Query(context.Background(), user, HistoryQuery{All: true, UserID: other.ID.String()})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "mine", resp.Rows[0].Question)
}

func TestHistory_AdminScopes(t *testing.T) {
	s := newStore()
	admin := newIdentity("Admin@Example.com")
	user := newIdentity("user@example.com")
	seedExchange(s, admin.ID, "admin q", "a", day(1, 10))
	seedExchange(s, user.ID, "user q", "b", day(1, 11))

	svc := newHistory(s)
	ctx := context.Background()

	resp, err := svc.Query(ctx, admin, HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 1)

	resp, err = svc.Query(ctx, admin, HistoryQuery{All: true})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2)
	assert.Equal(t, "user q", resp.Rows[0].Question, "newest first")

	resp, err = svc.Query(ctx, admin, HistoryQuery{UserID: user.ID.String()})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "user q", resp.Rows[0].Question)

	_, err = svc.Query(ctx, admin, HistoryQuery{UserID: "nope"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHistory_DateBoundsAreInclusive(t *testing.T) {
	s := newStore()
	user := newIdentity("user@example.com")
	seedExchange(s, user.ID, "before", "", time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC))
	seedExchange(s, user.ID, "start", "", day(2, 0))
	seedExchange(s, user.ID, "late on end day", "", time.Date(2024, 3, 3, 23, 59, 59, 0, time.UTC))
	seedExchange(s, user.ID, "after", "", day(4, 0))

	resp, err := newHistory(s).Query(context.Background(), user, HistoryQuery{Start: "2024-03-02", End: "2024-03-03"})
	require.NoError(t, err)

	var questions []string
	for _, row := range resp.Rows {
		questions = append(questions, row.Question)
	}
	assert.Equal(t, []string{"late on end day", "start"}, questions)
}

func TestHistory_FilterParsing(t *testing.T) {
	svc := newHistory(newStore())
	user := newIdentity("user@example.com")

	f, err := svc.Filter(user, HistoryQuery{Start: "2024-03-02T10:00:00+02:00", End: "2024-03-02"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), *f.Start)
	assert.Equal(t, time.Date(2024, 3, 2, 23, 59, 59, 999999999, time.UTC), *f.End)

	_, err = svc.Filter(user, HistoryQuery{Start: "yesterday"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Filter(user, HistoryQuery{Start: "2024-03-05", End: "2024-03-01"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHistory_TextSearchMatchesQuestionOrAnswer(t *testing.T) {
	s := newStore()
	user := newIdentity("user@example.com")
	seedExchange(s, user.ID, "Prix d'une AMENDE ?", "68 euros", day(1, 9))
	seedExchange(s, user.ID, "Délai de paiement", "45 jours pour payer l'amende", day(1, 10))
	seedExchange(s, user.ID, "Bonjour", "Bonjour !", day(1, 11))

	resp, err := newHistory(s).Query(context.Background(), user, HistoryQuery{Query: "amende"})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2)
}

func TestHistory_RoundTripIsByteIdentical(t *testing.T) {
	s := newStore()
	user := newIdentity("user@example.com")
	question := "Quel est le prix d'une amende de classe 3 ?\n\t« ok »"
	answer := "Réponse: 68 €, voir <https://example.com>"
	seedExchange(s, user.ID, question, answer, day(1, 9))

	resp, err := newHistory(s).Query(context.Background(), user, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, question, resp.Rows[0].Question)
	assert.Equal(t, answer, resp.Rows[0].Answer)
}

func TestAggregate(t *testing.T) {
	uid := uuid.New()
	rows := []models.Exchange{
		{UserID: uid, Question: "b", CreatedAt: day(2, 9)},
		{UserID: uid, Question: "a", CreatedAt: day(2, 10)},
		{UserID: uid, Question: "a", CreatedAt: day(2, 11)},
		{UserID: uid, Question: "c", CreatedAt: day(5, 9)},
		{UserID: uid, Question: "d", CreatedAt: day(5, 9)},
		{UserID: uid, Question: "e", CreatedAt: day(5, 9)},
		{UserID: uid, Question: "f", CreatedAt: day(6, 9)},
	}

	stats := Aggregate(rows)
	assert.Equal(t, 7, stats.TotalQuestions)
	assert.Equal(t, "2024-03-02", stats.MostActiveDay)
	assert.InDelta(t, 7.0/3.0, stats.AverageQuestionsPerDay, 0.0001)
	assert.Equal(t, []models.DailyCount{
		{Day: "2024-03-02", Count: 3},
		{Day: "2024-03-05", Count: 3},
		{Day: "2024-03-06", Count: 1},
	}, stats.PerDay)
	require.Len(t, stats.TopQuestions, 5)
	assert.Equal(t, models.TopQuestion{Question: "a", Count: 2}, stats.TopQuestions[0])
	assert.Equal(t, "b", stats.TopQuestions[1].Question)

	empty := Aggregate(nil)
	assert.Zero(t, empty.TotalQuestions)
	assert.NotNil(t, empty.PerDay)
	assert.NotNil(t, empty.TopQuestions)
}

func TestWriteCSV(t *testing.T) {
	conv := uuid.New()
	rows := []models.Exchange{{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		UserEmail:      "user@example.com",
		ConversationID: &conv,
		Question:       `Un "devis", svp`,
		Answer:         "ligne 1\nligne 2",
		CreatedAt:      day(2, 9),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "2024-03-02T09:00:00Z", records[1][1])
	assert.Equal(t, conv.String(), records[1][4])
	assert.Equal(t, `Un "devis", svp`, records[1][5])
	assert.Equal(t, "ligne 1\nligne 2", records[1][6])
}

func TestWriteCSV_NeutralizesFormulas(t *testing.T) {
	rows := []models.Exchange{{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		UserEmail: "@evil.example",
		Question:  `=HYPERLINK("http://evil.example","click")`,
		Answer:    "+1+1",
		CreatedAt: day(2, 9),
	}, {
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Question:  "-2",
		Answer:    "\tcmd",
		CreatedAt: day(2, 10),
	}, {
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Question:  "Combien = 3 ?",
		Answer:    "",
		CreatedAt: day(2, 11),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "'@evil.example", records[1][3])
	assert.Equal(t, `'=HYPERLINK("http://evil.example","click")`, records[1][5])
	assert.Equal(t, "'+1+1", records[1][6])
	assert.Equal(t, "'-2", records[2][5])
	assert.Equal(t, "'\tcmd", records[2][6])
	assert.Equal(t, "Combien = 3 ?", records[3][5])
	assert.Equal(t, "", records[3][6])
}
