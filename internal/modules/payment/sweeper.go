package payment

import (
	"context"
	"log"
	"time"

	"lulufarm/internal/domain"
	"lulufarm/internal/repository"
)

// maxSweepPages bounds one run; whatever is left waits for the next tick.
const maxSweepPages = 50

type SweepConfig struct {
	PendingTTL time.Duration // bookings older than this are stale (default: 30m)
	Interval   time.Duration // how often Schedule runs the sweep (default: 1m)
	BatchSize  int
	Enabled    bool
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		PendingTTL: 30 * time.Minute,
		Interval:   time.Minute,
		BatchSize:  100,
		Enabled:    true,
	}
}

type SweepResult struct {
	Checked   int
	Confirmed int
	Expired   int
	Skipped   int
}

// ExpirySweeper cancels PENDING bookings that outlived the payment window and
// gives their seats back. Bookings whose invoice turns out to be paid are
// confirmed instead.
type ExpirySweeper struct {
	bookings   *repository.BookingRepository
	gateway    Gateway
	reconciler *Reconciler
	cfg        SweepConfig
	now        func() time.Time
	loggerf    func(format string, args ...interface{})
}

func NewExpirySweeper(bookings *repository.BookingRepository, gateway Gateway, reconciler *Reconciler, cfg SweepConfig, loggerf func(format string, args ...interface{})) *ExpirySweeper {
	def := DefaultSweepConfig()
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &ExpirySweeper{
		bookings:   bookings,
		gateway:    gateway,
		reconciler: reconciler,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		loggerf:    loggerf,
	}
}

// RunOnce walks all stale PENDING bookings page by page. Bookings skipped
// because the gateway could not answer stay behind the cursor, so they never
// hide newer stale bookings.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := s.now().Add(-s.cfg.PendingTTL)

	var after *domain.Booking
	for page := 0; page < maxSweepPages; page++ {
		stale, err := s.bookings.ListStalePending(ctx, cutoff, after, s.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		for i := range stale {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Checked++
			s.sweepOne(ctx, &stale[i], &res)
		}
		if len(stale) < s.cfg.BatchSize {
			break
		}
		after = &stale[len(stale)-1]
	}
	if res.Checked > 0 {
		s.loggerf("level=info msg=pending sweep done checked=%d confirmed=%d expired=%d skipped=%d", res.Checked, res.Confirmed, res.Expired, res.Skipped)
	}
	return res, nil
}

func (s *ExpirySweeper) sweepOne(ctx context.Context, b *domain.Booking, res *SweepResult) {
	if b.InvoiceID != "" {
		status, err := s.gateway.CheckStatus(ctx, b.InvoiceID)
		if err != nil {
			// the customer may have paid; try again next round
			s.loggerf("level=warn msg=sweep status check failed booking_id=%s invoice_id=%s err=%v", b.ID, b.InvoiceID, err)
			res.Skipped++
			return
		}
		if status == StatusPaid {
			outcome, err := s.reconciler.ConfirmPaid(ctx, b.ID, b.InvoiceID)
			if err != nil {
				s.loggerf("level=error msg=sweep confirm failed booking_id=%s err=%v", b.ID, err)
				res.Skipped++
				return
			}
			if outcome == OutcomeTransitioned {
				res.Confirmed++
			}
			return
		}
	}

	outcome, err := s.reconciler.Expire(ctx, b.ID)
	if err != nil {
		s.loggerf("level=error msg=sweep expire failed booking_id=%s err=%v", b.ID, err)
		res.Skipped++
		return
	}
	if outcome == OutcomeTransitioned {
		res.Expired++
	}
}

// Schedule starts a background goroutine that sweeps every Interval. Close the
// returned channel or cancel ctx to stop it.
func (s *ExpirySweeper) Schedule(ctx context.Context) chan struct{} {
	if !s.cfg.Enabled {
		log.Println("Pending booking sweep is disabled")
		return nil
	}

	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					log.Printf("Pending sweep error: %v", err)
				}
			case <-stopCh:
				log.Println("Pending sweep stopped")
				return
			case <-ctx.Done():
				log.Println("Pending sweep stopped (context Done)")
				return
			}
		}
	}()

	log.Printf("Pending sweep started: ttl=%v interval=%v", s.cfg.PendingTTL, s.cfg.Interval)
	return stopCh
}
