package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"time"

	"github.com/boxinggym/walkin-backend/internal/middleware"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

var testLocation = time.UTC

var testToday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// withStaff simulates StaffAuth for handler tests
func withStaff(staff middleware.StaffContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.StaffContextKey, staff)
		c.Next()
	}
}

// closeNotifyRecorder lets gin's c.Stream run against a recorder
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

// ===== BookingAPI =====

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) CreateBooking(ctx context.Context, req *models.CreateBookingRequest, channel models.Channel) (*models.Booking, error) {
	args := m.Called(ctx, req, channel)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) IssuePaymentIntent(ctx context.Context, id uuid.UUID) (*models.PaymentIntentResponse, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.PaymentIntentResponse)
	return r, args.Error(1)
}

func (m *mockBookings) RequestCashPayment(ctx context.Context, id uuid.UUID) (*models.CashRequestResponse, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.CashRequestResponse)
	return r, args.Error(1)
}

func (m *mockBookings) ConfirmCashPayment(ctx context.Context, id uuid.UUID, req models.ConfirmCashRequest, meta services.RequestMeta) (*models.Booking, error) {
	args := m.Called(ctx, id, req, meta)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) MarkAttended(ctx context.Context, id uuid.UUID, meta services.RequestMeta) (*models.Booking, error) {
	args := m.Called(ctx, id, meta)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) CancelBooking(ctx context.Context, id uuid.UUID, reason string, meta services.RequestMeta) (*models.Booking, error) {
	args := m.Called(ctx, id, reason, meta)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) GetBookingDetail(ctx context.Context, id uuid.UUID) (*services.BookingDetail, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*services.BookingDetail)
	return d, args.Error(1)
}

func (m *mockBookings) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	args := m.Called(ctx, filter)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ListMemberBookings(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Booking, error) {
	args := m.Called(ctx, memberID, limit)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ListSessions(ctx context.Context, date time.Time) ([]models.Session, error) {
	args := m.Called(ctx, date)
	s, _ := args.Get(0).([]models.Session)
	return s, args.Error(1)
}

func (m *mockBookings) HandlePaymentEvent(ctx context.Context, payload []byte, signature string, meta services.RequestMeta) (*services.EventResult, error) {
	args := m.Called(ctx, payload, signature, meta)
	r, _ := args.Get(0).(*services.EventResult)
	return r, args.Error(1)
}

func (m *mockBookings) Today() time.Time { return testToday }

func (m *mockBookings) Location() *time.Location { return testLocation }

// ===== MemberAPI =====

type mockMembers struct {
	mock.Mock
}

func (m *mockMembers) CreateMember(ctx context.Context, req *models.CreateMemberRequest, channel models.Channel) (*models.Member, error) {
	args := m.Called(ctx, req, channel)
	r, _ := args.Get(0).(*models.Member)
	return r, args.Error(1)
}

func (m *mockMembers) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Member)
	return r, args.Error(1)
}

func (m *mockMembers) SearchMembers(ctx context.Context, query string, limit int) ([]models.Member, error) {
	args := m.Called(ctx, query, limit)
	r, _ := args.Get(0).([]models.Member)
	return r, args.Error(1)
}

func (m *mockMembers) UpdateMember(ctx context.Context, id uuid.UUID, req *models.UpdateMemberRequest) (*models.Member, error) {
	args := m.Called(ctx, id, req)
	r, _ := args.Get(0).(*models.Member)
	return r, args.Error(1)
}

func (m *mockMembers) SetMemberStatus(ctx context.Context, id uuid.UUID, status string, meta services.RequestMeta) error {
	return m.Called(ctx, id, status, meta).Error(0)
}

func (m *mockMembers) ListMemberPayments(ctx context.Context, id uuid.UUID) ([]models.Payment, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).([]models.Payment)
	return r, args.Error(1)
}

// ===== ClassAPI =====

type mockClasses struct {
	mock.Mock
}

func (m *mockClasses) CreateClass(ctx context.Context, req *models.ClassRequest) (*models.Class, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*models.Class)
	return r, args.Error(1)
}

func (m *mockClasses) UpdateClass(ctx context.Context, id uuid.UUID, req *models.ClassRequest) (*models.Class, error) {
	args := m.Called(ctx, id, req)
	r, _ := args.Get(0).(*models.Class)
	return r, args.Error(1)
}

func (m *mockClasses) GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Class)
	return r, args.Error(1)
}

func (m *mockClasses) ListClasses(ctx context.Context, activeOnly bool) ([]models.Class, error) {
	args := m.Called(ctx, activeOnly)
	r, _ := args.Get(0).([]models.Class)
	return r, args.Error(1)
}

// ===== JobRunner =====

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) RunNow(job string) (services.JobRun, error) {
	args := m.Called(job)
	return args.Get(0).(services.JobRun), args.Error(1)
}

func (m *mockJobs) GetJobStatus() []services.JobStatus {
	return m.Called().Get(0).([]services.JobStatus)
}

// ===== Auditor =====

type recordingAuditor struct {
	actions []string
	metas   []services.RequestMeta
}

func (a *recordingAuditor) LogWebhookSignatureInvalid(ctx context.Context, provider, reason string, meta services.RequestMeta) {
	a.actions = append(a.actions, services.AuditWebhookSignatureInvalid)
}

func (a *recordingAuditor) LogCashConfirmed(ctx context.Context, booking *models.Booking, amount decimal.Decimal, meta services.RequestMeta) {
	a.actions = append(a.actions, services.AuditCashConfirmed)
}

func (a *recordingAuditor) LogStaffAction(ctx context.Context, action, entityType string, entityID uuid.UUID, meta services.RequestMeta, details map[string]interface{}) {
	a.actions = append(a.actions, action)
	a.metas = append(a.metas, meta)
}

// ===== Subscriber =====

type fakeSubscriber struct {
	events []models.ChangeEvent
	err    error
	date   string
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, sessionDate string) (<-chan models.ChangeEvent, error) {
	s.date = sessionDate
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan models.ChangeEvent, len(s.events))
	for _, evt := range s.events {
		ch <- evt
	}
	close(ch)
	return ch, nil
}
