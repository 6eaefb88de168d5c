package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/internal/services"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

type HistoryService interface {
	Query(ctx context.Context, identity *auth.Identity, q services.HistoryQuery) (*models.HistoryResponse, error)
}

type ConversationService interface {
	List(ctx context.Context, identity *auth.Identity, query string) ([]models.Conversation, error)
	Messages(ctx context.Context, identity *auth.Identity, id string) ([]models.Exchange, error)
}

type HistoryHandler struct {
	history       HistoryService
	conversations ConversationService
	logger        *logrus.Logger
}

func NewHistoryHandler(history HistoryService, conversations ConversationService, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{
		history:       history,
		conversations: conversations,
		logger:        logger,
	}
}

func historyQuery(c *gin.Context) services.HistoryQuery {
	all := strings.ToLower(c.Query("all"))
	return services.HistoryQuery{
		Start:  c.Query("start"),
		End:    c.Query("end"),
		Query:  c.Query("q"),
		UserID: c.Query("userId"),
		All:    all == "true" || all == "1",
	}
}

// HandleHistory answers GET /api/history with rows and aggregates.
func (h *HistoryHandler) HandleHistory(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.history.Query(c.Request.Context(), caller, historyQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "History query")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "History retrieved", resp)
}

// HandleExport streams the same rows as HandleHistory as CSV.
func (h *HistoryHandler) HandleExport(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.history.Query(c.Request.Context(), caller, historyQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "History export")
		return
	}

	filename := fmt.Sprintf("historique-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if err := services.WriteCSV(c.Writer, resp.Rows); err != nil {
		h.logger.WithError(err).Error("Failed to write CSV export")
	}
}

func (h *HistoryHandler) HandleConversations(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	conversations, err := h.conversations.List(c.Request.Context(), caller, c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err, "Conversation listing")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Conversations retrieved", conversations)
}

func (h *HistoryHandler) HandleConversationMessages(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	messages, err := h.conversations.Messages(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Conversation messages")
		return
	}
	if messages == nil {
		messages = []models.Exchange{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Messages retrieved", messages)
}
