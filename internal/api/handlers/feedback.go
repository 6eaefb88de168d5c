package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/internal/services"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

type FeedbackService interface {
	Record(ctx context.Context, identity *auth.Identity, input services.FeedbackInput) (*models.Feedback, error)
}

type FeedbackHandler struct {
	feedback FeedbackService
	logger   *logrus.Logger
}

func NewFeedbackHandler(feedback FeedbackService, logger *logrus.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedback: feedback,
		logger:   logger,
	}
}

// HandleFeedback processes user feedback on an answer
func (h *FeedbackHandler) HandleFeedback(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid feedback format", "")
		return
	}

	feedback, err := h.feedback.Record(c.Request.Context(), caller, services.FeedbackInput{
		MessageID:  req.MessageID,
		IsPositive: req.IsPositive,
		Reason:     req.Reason,
		Comment:    req.Comment,
	})
	if err != nil {
		respondError(c, h.logger, err, "Feedback")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", feedback)
}
