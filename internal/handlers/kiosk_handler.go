package handlers

import (
	"net/http"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// KioskHandler serves the unauthenticated walk-in kiosk. It never exposes payment records.
type KioskHandler struct {
	bookings BookingAPI
	members  MemberAPI
	classes  ClassAPI
	logger   *logrus.Logger
}

// NewKioskHandler creates a new KioskHandler
func NewKioskHandler(bookings BookingAPI, members MemberAPI, classes ClassAPI, logger *logrus.Logger) *KioskHandler {
	return &KioskHandler{bookings: bookings, members: members, classes: classes, logger: logger}
}

// RegisterRoutes mounts the kiosk endpoints on rg
func (h *KioskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/classes", h.ListClasses)
	rg.GET("/sessions", h.ListSessions)
	rg.GET("/members/search", h.SearchMembers)
	rg.POST("/members", h.CreateMember)
	rg.POST("/bookings", h.CreateBooking)
	rg.GET("/bookings/:id", h.GetBooking)
	rg.POST("/bookings/:id/payment-intent", h.IssuePaymentIntent)
	rg.POST("/bookings/:id/cash-request", h.RequestCashPayment)
}

// ListClasses returns the active timetable
// @Router /api/v1/kiosk/classes [get]
func (h *KioskHandler) ListClasses(c *gin.Context) {
	classes, err := h.classes.ListClasses(c.Request.Context(), true)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// ListSessions returns the sessions running on ?date= with places left
// @Router /api/v1/kiosk/sessions [get]
func (h *KioskHandler) ListSessions(c *gin.Context) {
	date, ok := sessionDate(c, h.bookings.Location(), h.bookings.Today())
	if !ok {
		return
	}
	sessions, err := h.bookings.ListSessions(c.Request.Context(), date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":     date.Format(models.DateLayout),
		"sessions": sessions,
	})
}

// SearchMembers looks a walk-in up by name, email or phone
// @Router /api/v1/kiosk/members/search [get]
func (h *KioskHandler) SearchMembers(c *gin.Context) {
	members, err := h.members.SearchMembers(c.Request.Context(), c.Query("q"), intQuery(c, "limit", 10))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// The kiosk only needs enough to pick the right person
	results := make([]gin.H, 0, len(members))
	for _, m := range members {
		results = append(results, gin.H{
			"id":        m.ID,
			"name":      m.FullName(),
			"age_group": m.AgeGroup,
			"status":    m.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"members": results})
}

// CreateMember registers a walk-in at the kiosk
// @Router /api/v1/kiosk/members [post]
func (h *KioskHandler) CreateMember(c *gin.Context) {
	var req models.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	member, err := h.members.CreateMember(c.Request.Context(), &req, models.ChannelKiosk)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// CreateBooking books a member onto a session from the kiosk
// @Router /api/v1/kiosk/bookings [post]
func (h *KioskHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), &req, models.ChannelKiosk)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	device := utils.ParseUserAgent(c.Request.UserAgent())
	h.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"device_type": device.DeviceType,
		"kiosk":       utils.IsKiosk(c.Request.UserAgent()),
		"on_site":     utils.IsOnSite(utils.ClientIP(c)),
	}).Debug("Kiosk booking created")

	c.JSON(http.StatusCreated, booking)
}

// GetBooking returns a booking so the kiosk can poll for a card payment landing
// @Router /api/v1/kiosk/bookings/{id} [get]
func (h *KioskHandler) GetBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	booking, err := h.bookings.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// IssuePaymentIntent starts a card payment for an unpaid booking
// @Router /api/v1/kiosk/bookings/{id}/payment-intent [post]
func (h *KioskHandler) IssuePaymentIntent(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	intent, err := h.bookings.IssuePaymentIntent(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// RequestCashPayment tells the kiosk to send the member to the front desk
// @Router /api/v1/kiosk/bookings/{id}/cash-request [post]
func (h *KioskHandler) RequestCashPayment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.bookings.RequestCashPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
