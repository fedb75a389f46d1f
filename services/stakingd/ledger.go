package stakingd

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/native/nftstake"
	"github.com/tuturu-tech/nft-staking/observability"
	telemetry "github.com/tuturu-tech/nft-staking/observability/otel"
)

// Ledger serialises access to a staking engine and records a span and
// metrics for every operation. The engine itself is single-threaded.
type Ledger struct {
	mu      sync.Mutex
	engine  *nftstake.Engine
	metrics *observability.LedgerMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewLedger wraps engine.
func NewLedger(engine *nftstake.Engine, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		engine:  engine,
		metrics: observability.Ledger(),
		tracer:  telemetry.Tracer("stakingd/ledger"),
		logger:  logger,
	}
	l.mu.Lock()
	l.recordState()
	l.mu.Unlock()
	return l
}

// SetTracer replaces the tracer taken from the global provider.
func (l *Ledger) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracer = tracer
}

// Stake deposits unitIDs for caller.
func (l *Ledger) Stake(ctx context.Context, caller common.Address, unitIDs []uint64) error {
	return l.do(ctx, "stake", func() error {
		if len(unitIDs) == 1 {
			return l.engine.Stake(caller, unitIDs[0])
		}
		return l.engine.StakeBatch(caller, unitIDs)
	})
}

// Withdraw returns unitIDs to caller.
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address, unitIDs []uint64) error {
	return l.do(ctx, "withdraw", func() error {
		if len(unitIDs) == 1 {
			return l.engine.Withdraw(caller, unitIDs[0])
		}
		return l.engine.WithdrawBatch(caller, unitIDs)
	})
}

// WithdrawAll returns every unit caller has staked.
func (l *Ledger) WithdrawAll(ctx context.Context, caller common.Address) error {
	return l.do(ctx, "withdraw_all", func() error { return l.engine.WithdrawAll(caller) })
}

// Claim pays caller's whole-token rewards.
func (l *Ledger) Claim(ctx context.Context, caller common.Address) (*big.Int, error) {
	var paid *big.Int
	err := l.do(ctx, "claim", func() error {
		amount, err := l.engine.ClaimRewards(caller)
		if err != nil {
			return err
		}
		paid = amount
		l.metrics.RecordPayout(amount)
		return nil
	})
	return paid, err
}

// SetPaused sets the admission gate.
func (l *Ledger) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	return l.do(ctx, "set_paused", func() error { return l.engine.SetPaused(caller, paused) })
}

// Recover sweeps token to the admin. A nil amount sweeps everything
// sweepable. It returns the amount moved.
func (l *Ledger) Recover(ctx context.Context, caller, token common.Address, amount *big.Int) (*big.Int, error) {
	var moved *big.Int
	err := l.do(ctx, "recover", func() error {
		if amount == nil {
			swept, err := l.engine.RecoverTokenAll(caller, token)
			moved = swept
			return err
		}
		if err := l.engine.RecoverToken(caller, token, amount); err != nil {
			return err
		}
		moved = new(big.Int).Set(amount)
		return nil
	})
	return moved, err
}

// Summary returns the ledger-wide views.
func (l *Ledger) Summary() (nftstake.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Summary()
}

// Position returns the views for addr.
func (l *Ledger) Position(addr common.Address) (nftstake.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Position(addr)
}

func (l *Ledger) do(ctx context.Context, operation string, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, span := telemetry.StartOperation(ctx, l.tracer, operation)
	start := time.Now()
	err := fn()
	outcome := outcomeOf(err)
	l.metrics.Observe(operation, outcome, time.Since(start))
	telemetry.EndOperation(span, outcome, err)
	l.recordState()
	return err
}

func (l *Ledger) recordState() {
	outstanding, err := l.engine.OutstandingRewards()
	if err != nil {
		l.logger.Warn("stakingd: outstanding rewards unavailable, gauges not updated", "error", err)
		return
	}
	l.metrics.RecordState(l.engine.TotalSupply(), l.engine.Paused(), outstanding)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, stakeerrors.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, stakeerrors.ErrNotOwner),
		errors.Is(err, stakeerrors.ErrNotCallersToken),
		errors.Is(err, stakeerrors.ErrNotOwnerOrNotApproved):
		return "unauthorised"
	case errors.Is(err, stakeerrors.ErrStakingPaused):
		return "paused"
	default:
		return "rejected"
	}
}
