package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RealtimeHandler streams change events to the admin dashboard over SSE
type RealtimeHandler struct {
	subscriber realtime.Subscriber
	bookings   BookingAPI
	heartbeat  time.Duration
	logger     *logrus.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler
func NewRealtimeHandler(subscriber realtime.Subscriber, bookings BookingAPI, logger *logrus.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		subscriber: subscriber,
		bookings:   bookings,
		heartbeat:  25 * time.Second,
		logger:     logger,
	}
}

// Stream pushes booking and payment changes for ?date= until the client goes away
// @Router /api/v1/admin/realtime [get]
func (h *RealtimeHandler) Stream(c *gin.Context) {
	date, ok := sessionDate(c, h.bookings.Location(), h.bookings.Today())
	if !ok {
		return
	}
	day := date.Format(models.DateLayout)

	ctx := c.Request.Context()
	events, err := h.subscriber.Subscribe(ctx, day)
	if err != nil {
		if errors.Is(err, realtime.ErrDisabled) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{"realtime_disabled", err.Error(), "REALTIME_DISABLED"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.WithField("date", day).Debug("Realtime subscriber connected")
	c.SSEvent("ready", gin.H{"date": day})

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Action), evt)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
	h.logger.WithField("date", day).Debug("Realtime subscriber disconnected")
}
