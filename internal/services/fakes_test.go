package services

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// memDB is an in-memory stand-in for Postgres. Conditional updates mirror
// the WHERE clauses of the repositories.
type memDB struct {
	mu       sync.Mutex
	members  map[uuid.UUID]models.Member
	classes  map[uuid.UUID]models.Class
	bookings map[uuid.UUID]models.Booking
	payments map[uuid.UUID]models.Payment
	events   []models.PaymentEvent
}

func newMemDB() *memDB {
	return &memDB{
		members:  map[uuid.UUID]models.Member{},
		classes:  map[uuid.UUID]models.Class{},
		bookings: map[uuid.UUID]models.Booking{},
		payments: map[uuid.UUID]models.Payment{},
	}
}

func (db *memDB) stores() Stores {
	return Stores{
		Members:       memberStore{db},
		Classes:       classStore{db},
		Bookings:      bookingStore{db},
		Payments:      paymentStore{db},
		PaymentEvents: eventStore{db},
	}
}

func (db *memDB) booking(id uuid.UUID) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bookings[id]
}

func (db *memDB) paymentsFor(bookingID uuid.UUID) []models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Payment
	for _, p := range db.payments {
		if p.BookingID != nil && *p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out
}

func (db *memDB) loggedOutcomes() []models.PaymentEventOutcome {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.PaymentEventOutcome, 0, len(db.events))
	for _, e := range db.events {
		out = append(out, e.Outcome)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	return a.Format(models.DateLayout) == b.Format(models.DateLayout)
}

// ---------------------------------------------------------------------------

type memberStore struct{ db *memDB }

func (s memberStore) Create(ctx context.Context, m *models.Member) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.members {
		if m.Email != nil && existing.Email != nil && *existing.Email == *m.Email {
			return database.ErrConflict
		}
	}
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	s.db.members[m.ID] = *m
	return nil
}

func (s memberStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s memberStore) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.members {
		if m.Email != nil && strings.EqualFold(*m.Email, email) {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

func (s memberStore) Search(ctx context.Context, term string, limit int) ([]models.Member, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	term = strings.ToLower(term)
	out := []models.Member{}
	for _, m := range s.db.members {
		hay := strings.ToLower(m.FullName())
		if m.Phone != nil {
			hay += " " + *m.Phone
		}
		if strings.Contains(hay, term) && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s memberStore) Update(ctx context.Context, m *models.Member) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.members[m.ID] = *m
	return nil
}

func (s memberStore) SetStatus(ctx context.Context, id uuid.UUID, status models.MemberStatus) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.members[id]
	if !ok {
		return false, nil
	}
	m.Status = status
	s.db.members[id] = m
	return true, nil
}

// ---------------------------------------------------------------------------

type classStore struct{ db *memDB }

func (s classStore) Create(ctx context.Context, c *models.Class) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.classes {
		if existing.Slug == c.Slug {
			return database.ErrConflict
		}
	}
	s.db.classes[c.ID] = *c
	return nil
}

func (s classStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.classes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s classStore) Update(ctx context.Context, c *models.Class) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.classes[c.ID] = *c
	return nil
}

func (s classStore) List(ctx context.Context, activeOnly bool) ([]models.Class, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Class{}
	for _, c := range s.db.classes {
		if !activeOnly || c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s classStore) ListActiveByDay(ctx context.Context, day int) ([]models.Class, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Class{}
	for _, c := range s.db.classes {
		if c.IsActive && c.DayOfWeek == day {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// ---------------------------------------------------------------------------

type bookingStore struct{ db *memDB }

func (s bookingStore) Create(ctx context.Context, b *models.Booking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b.CreatedAt, b.UpdatedAt = time.Now(), time.Now()
	s.db.bookings[b.ID] = *b
	return nil
}

func (s bookingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s bookingStore) CountActiveForSlot(ctx context.Context, classID uuid.UUID, date time.Time, start string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, b := range s.db.bookings {
		if b.ClassID == classID && sameDay(b.SessionDate, date) && b.SessionStartTime == start && b.Status.CountsTowardCapacity() {
			n++
		}
	}
	return n, nil
}

func (s bookingStore) CountActiveByClass(ctx context.Context, date time.Time) (map[uuid.UUID]int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := map[uuid.UUID]int{}
	for _, b := range s.db.bookings {
		if sameDay(b.SessionDate, date) && b.Status.CountsTowardCapacity() {
			out[b.ClassID]++
		}
	}
	return out, nil
}

func (s bookingStore) MemberHasSlot(ctx context.Context, memberID, classID uuid.UUID, date time.Time, start string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, b := range s.db.bookings {
		if b.MemberID == memberID && b.ClassID == classID && sameDay(b.SessionDate, date) &&
			b.SessionStartTime == start && b.Status.CountsTowardCapacity() {
			return true, nil
		}
	}
	return false, nil
}

func (s bookingStore) MemberHasTrial(ctx context.Context, memberID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, b := range s.db.bookings {
		if b.MemberID == memberID && b.BookingType == models.BookingTypeTrial {
			return true, nil
		}
	}
	return false, nil
}

func (s bookingStore) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Booking{}
	for _, b := range s.db.bookings {
		if !sameDay(b.SessionDate, f.SessionDate) {
			continue
		}
		if f.ClassID != nil && b.ClassID != *f.ClassID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s bookingStore) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Booking{}
	for _, b := range s.db.bookings {
		if b.MemberID == memberID {
			out = append(out, b)
		}
	}
	return out, nil
}

// update applies fn to the booking when cond holds, like UPDATE ... WHERE ... RETURNING
func (s bookingStore) update(id uuid.UUID, cond func(models.Booking) bool, fn func(*models.Booking)) *models.Booking {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok || !cond(b) {
		return nil
	}
	fn(&b)
	b.UpdatedAt = time.Now()
	s.db.bookings[id] = b
	return &b
}

func awaitingPayment(b models.Booking) bool { return b.AwaitingPayment() }

func (s bookingStore) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) (*models.Booking, error) {
	return s.update(id, awaitingPayment, func(b *models.Booking) {
		b.PaymentIntentID = &intentID
		b.PaymentMethod = models.PaymentMethodCard.Ptr()
		b.CashRequestedAt = nil
	}), nil
}

func (s bookingStore) RequestCash(ctx context.Context, id uuid.UUID, at time.Time) (*models.Booking, error) {
	return s.update(id, awaitingPayment, func(b *models.Booking) {
		b.PaymentMethod = models.PaymentMethodCash.Ptr()
		b.CashRequestedAt = &at
	}), nil
}

func (s bookingStore) MarkAttended(ctx context.Context, id uuid.UUID, at time.Time) (*models.Booking, error) {
	return s.update(id, func(b models.Booking) bool { return b.CanCheckIn() }, func(b *models.Booking) {
		b.Status = models.BookingStatusAttended
		if b.CheckedInAt == nil {
			b.CheckedInAt = &at
		}
	}), nil
}

func (s bookingStore) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.Booking, error) {
	return s.update(id, func(b models.Booking) bool { return b.Status == models.BookingStatusConfirmed }, func(b *models.Booking) {
		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &at
		b.CancelReason = &reason
	}), nil
}

func (s bookingStore) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.Booking, error) {
	return s.update(id, awaitingPayment, func(b *models.Booking) {
		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &at
		b.CancelReason = &reason
	}), nil
}

func (s bookingStore) ExpireStaleCash(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Booking{}
	for id, b := range s.db.bookings {
		if len(out) >= limit {
			break
		}
		if b.PaymentMethod != nil && *b.PaymentMethod == models.PaymentMethodCash && b.AwaitingPayment() &&
			b.CashRequestedAt != nil && b.CashRequestedAt.Before(cutoff) {
			now := time.Now()
			reason := "cash payment not received in time"
			b.Status = models.BookingStatusCancelled
			b.CancelledAt = &now
			b.CancelReason = &reason
			s.db.bookings[id] = b
			out = append(out, b)
		}
	}
	return out, nil
}

func (s bookingStore) MarkNoShows(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Booking{}
	for id, b := range s.db.bookings {
		if len(out) >= limit {
			break
		}
		if b.Status == models.BookingStatusConfirmed && b.SessionDate.Format(models.DateLayout) < before.Format(models.DateLayout) {
			b.Status = models.BookingStatusNoShow
			s.db.bookings[id] = b
			out = append(out, b)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------

type paymentStore struct{ db *memDB }

func (s paymentStore) GetByProviderTransactionID(ctx context.Context, txnID string) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.payments {
		if p.ProviderTransactionID != nil && *p.ProviderTransactionID == txnID {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (s paymentStore) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Payment{}
	for _, p := range s.db.payments {
		if p.MemberID == memberID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s paymentStore) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	return s.db.paymentsFor(bookingID), nil
}

// insert must be called with the lock held
func (s paymentStore) insert(p *models.Payment) error {
	if p.ProviderTransactionID != nil {
		for _, existing := range s.db.payments {
			if existing.ProviderTransactionID != nil && *existing.ProviderTransactionID == *p.ProviderTransactionID {
				return database.ErrConflict
			}
		}
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	s.db.payments[p.ID] = *p
	return nil
}

func (s paymentStore) SettleCardPayment(ctx context.Context, p *models.Payment) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[*p.BookingID]
	awaiting := ok && b.PaymentStatus == models.PaymentStatusPending && !b.Status.IsTerminal()
	if !awaiting {
		note := models.DuplicateChargeNote
		p.Status = models.PaymentRecordPending
		p.Notes = &note
	}
	if err := s.insert(p); err != nil {
		return nil, err
	}
	if !awaiting {
		return nil, nil
	}
	b.PaymentStatus = models.PaymentStatusPaid
	b.Status = models.BookingStatusConfirmed
	b.PaymentMethod = models.PaymentMethodCard.Ptr()
	b.CancelledAt, b.CancelReason = nil, nil
	s.db.bookings[b.ID] = b
	return &b, nil
}

func (s paymentStore) ConfirmCash(ctx context.Context, p *models.Payment, at time.Time) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[*p.BookingID]
	if !ok || !b.AwaitingPayment() {
		return nil, nil
	}
	b.PaymentStatus = models.PaymentStatusPaid
	b.PaymentMethod = models.PaymentMethodCash.Ptr()
	if b.CheckedInAt == nil {
		b.CheckedInAt = &at
	}
	if err := s.insert(p); err != nil {
		return nil, err
	}
	s.db.bookings[b.ID] = b
	return &b, nil
}

func (s paymentStore) ApplyRefund(ctx context.Context, paymentID uuid.UUID, upd models.RefundUpdate) (*models.Payment, *models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[paymentID]
	if !ok || p.IsNewerThan(upd.ProviderEventAt) {
		return nil, nil, nil
	}
	previous := p.Status
	p.Status = models.PaymentRecordRefunded
	p.RefundedAt = &upd.RefundedAt
	p.RefundAmount = decimal.NewNullDecimal(upd.RefundAmount)
	p.ProviderEventAt = &upd.ProviderEventAt
	s.db.payments[p.ID] = p

	if p.BookingID == nil || previous != models.PaymentRecordCompleted {
		return &p, nil, nil
	}
	b, ok := s.db.bookings[*p.BookingID]
	if !ok {
		return &p, nil, nil
	}
	b.PaymentStatus = models.PaymentStatusRefunded
	b.Status = models.BookingStatusCancelled
	s.db.bookings[b.ID] = b
	return &p, &b, nil
}

// ---------------------------------------------------------------------------

type eventStore struct{ db *memDB }

func (s eventStore) Log(ctx context.Context, e *models.PaymentEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.events = append(s.db.events, *e)
	return nil
}

func (s eventStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, e := range s.db.events {
		if e.Provider == provider && e.ProviderEventID != nil && *e.ProviderEventID == eventID &&
			e.Outcome != models.EventOutcomeError && e.Outcome != models.EventOutcomeRejected {
			return true, nil
		}
	}
	return false, nil
}

func (s eventStore) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.PaymentEvent{}
	for _, e := range s.db.events {
		if e.BookingID != nil && *e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) actions() []models.ChangeAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ChangeAction, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) record(action string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordingAuditor) LogWebhookSignatureInvalid(ctx context.Context, provider, reason string, meta RequestMeta) {
	a.record(AuditWebhookSignatureInvalid)
}

func (a *recordingAuditor) LogCashConfirmed(ctx context.Context, booking *models.Booking, amount decimal.Decimal, meta RequestMeta) {
	a.record(AuditCashConfirmed)
}

func (a *recordingAuditor) LogStaffAction(ctx context.Context, action, entityType string, entityID uuid.UUID, meta RequestMeta, details map[string]interface{}) {
	a.record(action)
}

// ---------------------------------------------------------------------------

// fixture wires a BookingService to fakes with the clock fixed on
// Monday 2026-10-19 09:00 London time
type fixture struct {
	db        *memDB
	svc       *BookingService
	provider  *payments.MockProvider
	publisher *recordingPublisher
	auditor   *recordingAuditor
	now       time.Time
	loc       *time.Location
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	f := &fixture{
		db:        newMemDB(),
		provider:  payments.NewMockProvider("mockwh_test"),
		publisher: &recordingPublisher{},
		auditor:   &recordingAuditor{},
		now:       time.Date(2026, 10, 19, 9, 0, 0, 0, loc),
		loc:       loc,
	}
	f.svc = NewBookingService(f.db.stores(), f.provider, f.publisher, f.auditor, nil, BookingOptions{
		Currency:       "gbp",
		CashTimeout:    5 * time.Minute,
		Location:       loc,
		SweepBatchSize: 2,
	}, quietLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addMember(t *testing.T, group models.AgeGroup) models.Member {
	t.Helper()
	m := models.Member{
		ID:        uuid.New(),
		FirstName: "Sam",
		LastName:  "Jones",
		AgeGroup:  group,
		Status:    models.MemberStatusActive,
	}
	f.db.members[m.ID] = m
	return m
}

// addClass adds an active class running on Tuesdays at 17:00
func (f *fixture) addClass(t *testing.T, name string, group models.AgeGroup, capacity int, price string) models.Class {
	t.Helper()
	c := models.Class{
		ID:              uuid.New(),
		Name:            name,
		Slug:            models.Slugify(name),
		AgeGroup:        group,
		DayOfWeek:       int(time.Tuesday),
		StartTime:       "17:00",
		DurationMinutes: 60,
		MaxCapacity:     capacity,
		DropInPrice:     decimal.RequireFromString(price),
		IsActive:        true,
	}
	f.db.classes[c.ID] = c
	return c
}

// nextTuesday is the first session date after the fixture clock
const nextTuesday = "2026-10-20"

// book creates a booking the way the desk would: drop-ins from the kiosk,
// memberships and trials through staff
func (f *fixture) book(t *testing.T, m models.Member, c models.Class, bookingType models.BookingType) *models.Booking {
	t.Helper()
	channel := models.ChannelKiosk
	if bookingType != models.BookingTypeDropIn {
		channel = models.ChannelAdmin
	}
	b, err := f.svc.CreateBooking(context.Background(), &models.CreateBookingRequest{
		MemberID:    m.ID.String(),
		ClassID:     c.ID.String(),
		SessionDate: nextTuesday,
		BookingType: string(bookingType),
	}, channel)
	require.NoError(t, err)
	return b
}

// deliver signs and handles a mock provider event
func (f *fixture) deliver(t *testing.T, evt payments.MockEvent) (*EventResult, error) {
	t.Helper()
	body := mustJSON(t, evt)
	return f.svc.HandlePaymentEvent(context.Background(), body, f.provider.Sign(body), RequestMeta{IPAddress: "203.0.113.7"})
}
