package handlers

import (
	"net/http"

	"github.com/boxinggym/walkin-backend/internal/middleware"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AdminHandler serves the front-desk and admin dashboard
type AdminHandler struct {
	bookings BookingAPI
	members  MemberAPI
	classes  ClassAPI
	history  HistoryReader
	logger   *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler. history may be nil.
func NewAdminHandler(bookings BookingAPI, members MemberAPI, classes ClassAPI, history HistoryReader, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		bookings: bookings,
		members:  members,
		classes:  classes,
		history:  history,
		logger:   logger,
	}
}

// RegisterRoutes mounts the staff endpoints on rg. rg must already require a staff token.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	members := rg.Group("/members")
	{
		members.GET("", h.SearchMembers)
		members.POST("", h.CreateMember)
		members.GET("/:id", h.GetMember)
		members.PUT("/:id", h.UpdateMember)
		members.PATCH("/:id/status", h.SetMemberStatus)
		members.GET("/:id/payments", h.ListMemberPayments)
		members.GET("/:id/bookings", h.ListMemberBookings)
	}

	classes := rg.Group("/classes")
	{
		classes.GET("", h.ListClasses)
		classes.POST("", middleware.RequireRole(jwt.RoleAdmin), h.CreateClass)
		classes.PUT("/:id", middleware.RequireRole(jwt.RoleAdmin), h.UpdateClass)
	}

	bookings := rg.Group("/bookings")
	{
		bookings.GET("", h.ListBookings)
		bookings.POST("", h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/history", h.GetBookingHistory)
		bookings.POST("/:id/cash-confirm", h.ConfirmCash)
		bookings.POST("/:id/check-in", h.CheckIn)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
}

// ===== Members =====

// SearchMembers searches members by name, email or phone
// @Router /api/v1/admin/members [get]
func (h *AdminHandler) SearchMembers(c *gin.Context) {
	members, err := h.members.SearchMembers(c.Request.Context(), c.Query("q"), intQuery(c, "limit", 20))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}

// CreateMember registers a member at the front desk
// @Router /api/v1/admin/members [post]
func (h *AdminHandler) CreateMember(c *gin.Context) {
	var req models.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	member, err := h.members.CreateMember(c.Request.Context(), &req, models.ChannelAdmin)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// GetMember returns a full member record
// @Router /api/v1/admin/members/{id} [get]
func (h *AdminHandler) GetMember(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	member, err := h.members.GetMember(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// UpdateMember edits a member
// @Router /api/v1/admin/members/{id} [put]
func (h *AdminHandler) UpdateMember(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	member, err := h.members.UpdateMember(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// SetMemberStatus activates, deactivates or suspends a member
// @Router /api/v1/admin/members/{id}/status [patch]
func (h *AdminHandler) SetMemberStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.SetMemberStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.members.SetMemberStatus(c.Request.Context(), id, req.Status, requestMeta(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

// ListMemberPayments returns a member's payments
// @Router /api/v1/admin/members/{id}/payments [get]
func (h *AdminHandler) ListMemberPayments(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	payments, err := h.members.ListMemberPayments(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// ListMemberBookings returns a member's recent bookings
// @Router /api/v1/admin/members/{id}/bookings [get]
func (h *AdminHandler) ListMemberBookings(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	bookings, err := h.bookings.ListMemberBookings(c.Request.Context(), id, intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// ===== Classes =====

// ListClasses returns every class, including inactive ones unless ?active=true
// @Router /api/v1/admin/classes [get]
func (h *AdminHandler) ListClasses(c *gin.Context) {
	classes, err := h.classes.ListClasses(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// CreateClass adds a class to the timetable
// @Router /api/v1/admin/classes [post]
func (h *AdminHandler) CreateClass(c *gin.Context) {
	var req models.ClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	class, err := h.classes.CreateClass(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

// UpdateClass edits a class. Existing bookings keep their price.
// @Router /api/v1/admin/classes/{id} [put]
func (h *AdminHandler) UpdateClass(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.ClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	class, err := h.classes.UpdateClass(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

// ===== Bookings =====

// ListBookings lists one day's bookings, filterable by class and status
// @Router /api/v1/admin/bookings [get]
func (h *AdminHandler) ListBookings(c *gin.Context) {
	date, ok := sessionDate(c, h.bookings.Location(), h.bookings.Today())
	if !ok {
		return
	}
	filter := models.BookingFilter{SessionDate: date}

	if raw := c.Query("class_id"); raw != "" {
		classID, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid class_id")
			return
		}
		filter.ClassID = &classID
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseBookingStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Status = &status
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":     date.Format(models.DateLayout),
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// CreateBooking books a member from the front desk
// @Router /api/v1/admin/bookings [post]
func (h *AdminHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	booking, err := h.bookings.CreateBooking(c.Request.Context(), &req, models.ChannelAdmin)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// GetBooking returns a booking with its payments and provider events
// @Router /api/v1/admin/bookings/{id} [get]
func (h *AdminHandler) GetBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.bookings.GetBookingDetail(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetBookingHistory returns the staff actions recorded against a booking
// @Router /api/v1/admin/bookings/{id}/history [get]
func (h *AdminHandler) GetBookingHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"events": []interface{}{}})
		return
	}
	events, err := h.history.GetEntityHistory(c.Request.Context(), "booking", id, intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ConfirmCash records cash taken at the desk
// @Router /api/v1/admin/bookings/{id}/cash-confirm [post]
func (h *AdminHandler) ConfirmCash(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.ConfirmCashRequest
	// Body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	booking, err := h.bookings.ConfirmCashPayment(c.Request.Context(), id, req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CheckIn marks a member as attended
// @Router /api/v1/admin/bookings/{id}/check-in [post]
func (h *AdminHandler) CheckIn(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	booking, err := h.bookings.MarkAttended(c.Request.Context(), id, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels a booking with a reason
// @Router /api/v1/admin/bookings/{id}/cancel [post]
func (h *AdminHandler) CancelBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	booking, err := h.bookings.CancelBooking(c.Request.Context(), id, req.Reason, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
