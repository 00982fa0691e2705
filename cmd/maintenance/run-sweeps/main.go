package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/boxinggym/walkin-backend/internal/config"
	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/sirupsen/logrus"
)

// Runs the cash-expiry and no-show sweeps once, outside the server. Useful
// after downtime or from an external scheduler.
func main() {
	var (
		skipExpiry  bool
		skipNoShows bool
		before      string
	)
	flag.BoolVar(&skipExpiry, "skip-expiry", false, "do not expire unpaid cash bookings")
	flag.BoolVar(&skipNoShows, "skip-no-shows", false, "do not mark no-shows")
	flag.StringVar(&before, "before", "", "mark no-shows for sessions before this date (YYYY-MM-DD, default today)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	stores := services.Stores{
		Members:       database.NewMemberRepository(db.DB),
		Classes:       database.NewClassRepository(db.DB),
		Bookings:      database.NewBookingRepository(db.DB),
		Payments:      database.NewPaymentRepository(db.DB, logger),
		PaymentEvents: database.NewPaymentEventRepository(db.DB, logger),
	}
	loc := cfg.Booking.Location()

	// Sweeps never talk to the provider; the mock keeps the service happy
	bookingService := services.NewBookingService(stores, payments.NewMockProvider(""), nil, nil, nil, services.BookingOptions{
		Currency:       cfg.Payment.Currency,
		CashTimeout:    cfg.Booking.CashTimeout,
		Location:       loc,
		SweepBatchSize: cfg.Booking.SweepBatchSize,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if !skipExpiry {
		n, err := bookingService.ExpireStaleCashBookings(ctx, time.Now())
		if err != nil {
			logger.Fatalf("Cash expiry sweep failed: %v", err)
		}
		logger.WithField("expired", n).Info("Cash expiry sweep finished")
	}

	if !skipNoShows {
		cutoff := bookingService.Today()
		if before != "" {
			cutoff, err = models.ParseDate(before, loc)
			if err != nil {
				logger.Fatalf("Invalid -before: %v", err)
			}
		}
		n, err := bookingService.MarkNoShows(ctx, cutoff)
		if err != nil {
			logger.Fatalf("No-show sweep failed: %v", err)
		}
		logger.WithFields(logrus.Fields{"marked": n, "before": cutoff.Format(models.DateLayout)}).Info("No-show sweep finished")
	}
}
