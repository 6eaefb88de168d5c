package handlers

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/internal/services"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

const maxMessageLength = 4000

type ChatService interface {
	Ask(ctx context.Context, identity *auth.Identity, input services.ChatInput) (*services.ChatResult, error)
}

type ChatHandler struct {
	chat   ChatService
	logger *logrus.Logger
}

func NewChatHandler(chat ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// HandleChat answers POST /api/chatbot.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Invalid chat request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", "")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		utils.ErrorResponse(c, http.StatusBadRequest, "Message too long (max 4000 characters)", "message")
		return
	}

	result, err := h.chat.Ask(c.Request.Context(), caller, services.ChatInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		respondError(c, h.logger, err, "Chat")
		return
	}

	resp := models.ChatResponse{Text: result.Text}
	if result.ConversationID != nil {
		resp.ConversationID = result.ConversationID.String()
	}
	if result.MessageID != nil {
		resp.MessageID = result.MessageID.String()
	}
	c.JSON(http.StatusOK, resp)
}
