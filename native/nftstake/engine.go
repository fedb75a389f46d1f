package nftstake

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/core/events"
	"github.com/tuturu-tech/nft-staking/core/rewards"
)

var (
	errNilCustody = errors.New("nftstake: collateral custody not configured")
	errNilVault   = errors.New("nftstake: fungible vault not configured")
)

// Engine is the staking ledger. Every mutating entry point synchronises the
// reward accumulator and reconciles the calling account before any
// collateral moves.
//
// Engine is not safe for concurrent use: callers must serialise operations.
// Re-entering a mutating entry point from inside a collaborator callback is
// rejected with ErrReentrantCall.
type Engine struct {
	cfg       Config
	custody   CollateralCustody
	vault     FungibleVault
	authority Authority
	emitter   events.Emitter
	store     Store
	logger    *slog.Logger
	nowFn     func() int64

	acc         *rewards.Accumulator
	totalStaked uint64
	paid        *uint256.Int
	paused      bool
	accounts    map[common.Address]*account
	units       unitSet

	// unsaved holds accounts whose last write failed.
	unsaved map[common.Address]struct{}

	entered bool
}

// NewEngine creates a ledger over the supplied collateral and reward
// capabilities. The admin role defaults to cfg.Owner.
func NewEngine(custody CollateralCustody, vault FungibleVault, cfg Config) (*Engine, error) {
	if custody == nil {
		return nil, errNilCustody
	}
	if vault == nil {
		return nil, errNilVault
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		custody:   custody,
		vault:     vault,
		authority: AdminAccount(cfg.Owner),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		nowFn:     func() int64 { return time.Now().Unix() },
		acc:       rewards.NewAccumulator(cfg.RewardRate, 0),
		paid:      new(uint256.Int),
		accounts:  make(map[common.Address]*account),
		units:     make(unitSet),
	}, nil
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAuthority replaces the admin predicate. Passing nil restores the
// single-owner default.
func (e *Engine) SetAuthority(authority Authority) {
	if authority == nil {
		e.authority = AdminAccount(e.cfg.Owner)
		return
	}
	e.authority = authority
}

// SetLogger configures the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) enter() error {
	if e.entered {
		return stakeerrors.ErrReentrantCall
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() { e.entered = false }

func (e *Engine) isAdmin(caller common.Address) bool {
	return e.authority != nil && e.authority.IsAdmin(caller)
}

// sync advances the global accumulator to the current time using the staked
// count in force before the current operation.
func (e *Engine) sync() (*uint256.Int, error) {
	index, err := e.acc.Sync(e.now(), e.totalStaked)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stakeerrors.ErrAccumulatorOverflow, err)
	}
	return index, nil
}

// reconciled returns a working copy of addr's record with rewards brought up
// to index using the balance held before this operation.
func (e *Engine) reconciled(addr common.Address, index *uint256.Int) (*account, error) {
	acct := e.accounts[addr].clone()
	if _, err := acct.checkpoint.Reconcile(acct.balance(), index); err != nil {
		return nil, fmt.Errorf("%w: reconcile %s: %w", stakeerrors.ErrAccumulatorOverflow, addr.Hex(), err)
	}
	return acct, nil
}

// commit installs a working copy and the unit ownership changes that go with
// it, then persists the touched records.
func (e *Engine) commit(addr common.Address, acct *account, added, removed []uint64) error {
	for _, id := range removed {
		delete(e.units, id)
	}
	for _, id := range added {
		e.units[id] = addr
	}
	e.totalStaked = e.totalStaked + uint64(len(added)) - uint64(len(removed))
	if acct.empty() {
		delete(e.accounts, addr)
	} else {
		e.accounts[addr] = acct
	}
	if err := e.persist(addr); err != nil {
		e.logger.Error("nftstake: persist ledger", "account", addr.Hex(), "error", err)
		return fmt.Errorf("nftstake: persist ledger: %w", err)
	}
	return nil
}

func transferFailed(err error) error {
	return fmt.Errorf("%w: %w", stakeerrors.ErrTransferFailed, err)
}

func checkBatch(ids []uint64) error {
	if len(ids) == 0 {
		return stakeerrors.ErrEmptyBatch
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d", stakeerrors.ErrDuplicateUnit, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
