package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/middleware"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

type DashboardService interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
	DeleteExchange(ctx context.Context, id string) error
}

type FeedbackLister interface {
	Recent(ctx context.Context, limit int) ([]models.Feedback, error)
}

type AdminHandler struct {
	sessions  middleware.SessionProvider
	admins    middleware.AdminChecker
	dashboard DashboardService
	feedback  FeedbackLister
	logger    *logrus.Logger
}

func NewAdminHandler(
	sessions middleware.SessionProvider,
	admins middleware.AdminChecker,
	dashboard DashboardService,
	feedback FeedbackLister,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		sessions:  sessions,
		admins:    admins,
		dashboard: dashboard,
		feedback:  feedback,
		logger:    logger,
	}
}

// CheckAdmin answers GET /api/check-admin. It resolves the session itself
// so that an anonymous caller gets {isAdmin:false} with a 401.
func (h *AdminHandler) CheckAdmin(c *gin.Context) {
	caller, err := h.sessions.Current(c.Request)
	if err != nil || caller == nil {
		c.JSON(http.StatusUnauthorized, models.CheckAdminResponse{IsAdmin: false})
		return
	}
	c.JSON(http.StatusOK, models.CheckAdminResponse{
		IsAdmin: h.admins.IsAdmin(caller.Email),
		Email:   caller.Email,
	})
}

func (h *AdminHandler) HandleStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Dashboard stats")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Stats retrieved", stats)
}

func (h *AdminHandler) HandleFeedback(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	feedback, err := h.feedback.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err, "Feedback listing")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Feedback retrieved", feedback)
}

func (h *AdminHandler) HandleDeleteExchange(c *gin.Context) {
	id := c.Param("id")
	if err := h.dashboard.DeleteExchange(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Exchange deletion")
		return
	}
	if caller, ok := middleware.CurrentIdentity(c); ok {
		h.logger.WithFields(logrus.Fields{
			"admin":       caller.Email,
			"exchange_id": id,
		}).Info("Admin deleted exchange")
	}
	utils.SuccessResponse(c, http.StatusOK, "Exchange deleted", nil)
}
