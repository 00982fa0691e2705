package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxEventBytes caps provider event bodies
const maxEventBytes = 65536

// WebhookHandler receives payment provider events
type WebhookHandler struct {
	bookings        BookingAPI
	signatureHeader string
	logger          *logrus.Logger
}

// NewWebhookHandler creates a handler reading the signature from signatureHeader
// (Stripe-Signature for Stripe, X-Mock-Signature for the mock provider)
func NewWebhookHandler(bookings BookingAPI, signatureHeader string, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{bookings: bookings, signatureHeader: signatureHeader, logger: logger}
}

// HandleEvent verifies and applies one provider event.
// Duplicates, stale events and unknown bookings are acknowledged with 200 so the
// provider stops redelivering. Store failures return 500 so it retries.
// @Router /api/v1/webhooks/{provider} [post]
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes+1))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}
	if len(payload) > maxEventBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{"payload_too_large", "Event body is too large", "PAYLOAD_TOO_LARGE"})
		return
	}

	result, err := h.bookings.HandlePaymentEvent(c.Request.Context(), payload, c.GetHeader(h.signatureHeader), requestMeta(c))
	if err != nil {
		var signature *services.InvalidSignatureError
		if !errors.As(err, &signature) {
			h.logger.WithError(err).Error("Payment event not applied, provider will retry")
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"result":   result,
	})
}
