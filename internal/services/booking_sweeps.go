package services

import (
	"context"
	"fmt"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
)

// maxSweepBatches bounds a single sweep run; anything left is picked up next run
const maxSweepBatches = 50

// ExpireStaleCashBookings cancels bookings whose cash request is older than the
// cash timeout. Each row is cancelled by a conditional update, so a cash
// confirmation that committed first keeps its booking.
func (s *BookingService) ExpireStaleCashBookings(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.opts.CashTimeout)
	start := time.Now()

	total := 0
	for batch := 0; batch < maxSweepBatches; batch++ {
		expired, err := s.stores.Bookings.ExpireStaleCash(ctx, cutoff, s.opts.SweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to expire cash bookings: %w", err)
		}
		for j := range expired {
			b := &expired[j]
			s.logger.WithField("booking_id", b.ID).
				WithField("cash_requested_at", b.CashRequestedAt).
				Info("Cash booking expired")
			s.publish(ctx, models.NewBookingChange(models.ChangeBookingCancelled, b))
		}
		total += len(expired)
		if len(expired) < s.opts.SweepBatchSize {
			break
		}
	}

	s.monitor.TrackSweep("cash_expiry", total, time.Since(start))
	if total > 0 {
		s.logger.WithField("count", total).Info("Expired unpaid cash bookings")
	}
	return total, nil
}

// MarkNoShows marks confirmed bookings for sessions before the given date as no-shows
func (s *BookingService) MarkNoShows(ctx context.Context, before time.Time) (int, error) {
	start := time.Now()

	total := 0
	for batch := 0; batch < maxSweepBatches; batch++ {
		marked, err := s.stores.Bookings.MarkNoShows(ctx, before, s.opts.SweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to mark no-shows: %w", err)
		}
		for j := range marked {
			s.publish(ctx, models.NewBookingChange(models.ChangeBookingUpdated, &marked[j]))
		}
		total += len(marked)
		if len(marked) < s.opts.SweepBatchSize {
			break
		}
	}

	s.monitor.TrackSweep("no_show", total, time.Since(start))
	if total > 0 {
		s.logger.WithField("count", total).
			WithField("before", before.Format(models.DateLayout)).
			Info("Marked no-shows")
	}
	return total, nil
}
