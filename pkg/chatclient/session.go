package chatclient

import (
	"context"
	"time"

	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/sirupsen/logrus"
)

var minRefreshInterval = 5 * time.Second

// RefreshInterval is half the session lifetime. Without a lifetime it falls
// back to half the time left before ExpiresAt.
func RefreshInterval(session *models.SessionResponse, now time.Time) time.Duration {
	interval := time.Duration(session.ExpiresIn) * time.Second / 2
	if interval <= 0 && !session.ExpiresAt.IsZero() {
		interval = session.ExpiresAt.Sub(now) / 2
	}
	if interval < minRefreshInterval {
		interval = minRefreshInterval
	}
	return interval
}

// KeepAlive refreshes the session at RefreshInterval until ctx ends or a
// refresh fails. onRefresh, when set, sees every new session.
func (c *APIClient) KeepAlive(ctx context.Context, session *models.SessionResponse, onRefresh func(*models.SessionResponse)) error {
	current := *session
	timer := time.NewTimer(RefreshInterval(&current, time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next, err := c.Refresh(ctx, current.RefreshToken)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Warn("Session refresh failed")
			return err
		}
		if next.RefreshToken == "" {
			next.RefreshToken = current.RefreshToken
		}
		current = *next

		c.logger.WithFields(logrus.Fields{
			"expires_in": current.ExpiresIn,
		}).Debug("Session refreshed")
		if onRefresh != nil {
			onRefresh(&current)
		}
		timer.Reset(RefreshInterval(&current, time.Now()))
	}
}
