package handlers

import (
	"errors"
	"net/http"

	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// respondError maps service errors onto HTTP statuses. Anything unrecognised is a 500
// and its detail stays in the log.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		full       *services.CapacityExceededError
		paid       *services.AlreadyPaidError
		transition *services.InvalidTransitionError
		ineligible *services.IneligibleError
		signature  *services.InvalidSignatureError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{"validation_error", validation.Error(), "VALIDATION_FAILED"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{"not_found", notFound.Error(), "NOT_FOUND"})
	case errors.As(err, &full):
		c.JSON(http.StatusConflict, ErrorResponse{"class_full", full.Error(), "CLASS_FULL"})
	case errors.As(err, &paid):
		c.JSON(http.StatusConflict, ErrorResponse{"already_paid", paid.Error(), "ALREADY_PAID"})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, ErrorResponse{"invalid_transition", transition.Error(), "INVALID_TRANSITION"})
	case errors.As(err, &ineligible):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{"not_eligible", ineligible.Error(), "NOT_ELIGIBLE"})
	case errors.As(err, &signature):
		c.JSON(http.StatusBadRequest, ErrorResponse{"invalid_signature", "Signature verification failed", "INVALID_SIGNATURE"})
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{"internal_error", "Something went wrong, please try again", "INTERNAL_ERROR"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{"invalid_request", message, "INVALID_REQUEST"})
}
