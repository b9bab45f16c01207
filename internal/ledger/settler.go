package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drewstaylor/fomo/internal/game"
)

// Outbox holds transfers that left custody and await crediting.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]game.Transfer, error)
	Settle(ctx context.Context, id uuid.UUID) (bool, error)
}

const sweepBatch = 100

// Settler credits committed transfers to their recipients in the background.
// Transfers that do not fit in the queue stay in the outbox and are picked
// up by the next sweep.
type Settler struct {
	outbox   Outbox
	queue    chan game.Transfer
	interval time.Duration
	logger   *slog.Logger
	onSettle func(game.Transfer)
}

func NewSettler(outbox Outbox, buffer int, interval time.Duration, logger *slog.Logger) *Settler {
	if buffer <= 0 {
		buffer = 64
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Settler{
		outbox:   outbox,
		queue:    make(chan game.Transfer, buffer),
		interval: interval,
		logger:   logger,
	}
}

// OnSettle registers a hook called after each transfer is credited.
func (s *Settler) OnSettle(fn func(game.Transfer)) {
	s.onSettle = fn
}

// Enqueue never blocks the caller.
func (s *Settler) Enqueue(transfers ...game.Transfer) {
	for _, tr := range transfers {
		select {
		case s.queue <- tr:
		default:
			s.logger.Warn("settle queue full, deferring to sweep", "transfer", tr.ID)
		}
	}
}

// Run drains the queue until ctx is cancelled, sweeping the outbox on start
// and on every tick.
func (s *Settler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case tr := <-s.queue:
			s.settle(ctx, tr)
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Settler) sweep(ctx context.Context) {
	pending, err := s.outbox.Pending(ctx, sweepBatch)
	if err != nil {
		s.logger.Error("list pending transfers", "err", err)
		return
	}
	for _, tr := range pending {
		s.settle(ctx, tr)
	}
}

func (s *Settler) settle(ctx context.Context, tr game.Transfer) {
	ok, err := s.outbox.Settle(ctx, tr.ID)
	if err != nil {
		s.logger.Error("settle transfer", "transfer", tr.ID, "to", tr.To, "err", err)
		return
	}
	if !ok {
		return
	}
	s.logger.Info("transfer settled", "transfer", tr.ID, "to", tr.To, "amount", tr.Amount.String())
	if s.onSettle != nil {
		s.onSettle(tr)
	}
}
