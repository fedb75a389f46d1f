package stakingd

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tuturu-tech/nft-staking/native/nftstake"
	"github.com/tuturu-tech/nft-staking/native/tokens"
	"github.com/tuturu-tech/nft-staking/storage"
)

var backendKey = []byte("stakingd/tokens")

// SeedMint mints Count units to Owner when the backend is first created.
type SeedMint struct {
	Owner common.Address
	Count int
}

// Seed describes the initial token state of a fresh backend.
type Seed struct {
	Mints       []SeedMint
	RewardFloat *big.Int
}

type backendRecord struct {
	Collection tokens.CollectionState
	Balances   tokens.LedgerState
}

// Backend hosts the in-process collection and reward vault the ledger moves
// assets through. Its state lives in the same database as the ledger.
type Backend struct {
	cfg        nftstake.Config
	db         storage.Database
	collection *tokens.Collection
	ledger     *tokens.Ledger
	logger     *slog.Logger
}

// OpenBackend loads the token state from db, seeding it on first use. Seeded
// owners grant the custodian approval-for-all so their units can be staked
// without a separate approval call.
func OpenBackend(db storage.Database, cfg nftstake.Config, seed *Seed, logger *slog.Logger) (*Backend, error) {
	if db == nil {
		return nil, fmt.Errorf("stakingd: backend database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		cfg:        cfg,
		db:         db,
		collection: tokens.NewCollection(cfg.StakingToken),
		ledger:     tokens.NewLedger(),
		logger:     logger,
	}
	raw, err := db.Get(backendKey)
	switch {
	case err == nil:
		var rec backendRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return nil, fmt.Errorf("stakingd: decode token state: %w", err)
		}
		b.collection.LoadState(rec.Collection)
		b.ledger.LoadState(rec.Balances)
		logger.Info("stakingd: token state restored", "units", len(rec.Collection.Owners), "balances", len(rec.Balances.Balances))
		return b, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	if seed != nil {
		if err := b.apply(*seed); err != nil {
			return nil, err
		}
	}
	if err := b.Save(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) apply(seed Seed) error {
	for _, mint := range seed.Mints {
		first := uint64(0)
		for i := 0; i < mint.Count; i++ {
			id := b.collection.Mint(mint.Owner)
			if first == 0 {
				first = id
			}
		}
		b.collection.SetApprovalForAll(mint.Owner, b.cfg.Custodian, true)
		b.logger.Info("stakingd: seeded units", "owner", mint.Owner.Hex(), "count", mint.Count, "firstId", first)
	}
	if seed.RewardFloat != nil && seed.RewardFloat.Sign() > 0 {
		if err := b.ledger.Mint(b.cfg.RewardToken, b.cfg.Custodian, seed.RewardFloat); err != nil {
			return fmt.Errorf("stakingd: fund reward float: %w", err)
		}
	}
	return nil
}

// Custody returns the collateral capability backed by the collection.
func (b *Backend) Custody() nftstake.CollateralCustody {
	return tokens.Custody{Collection: b.collection, Custodian: b.cfg.Custodian}
}

// Vault returns the reward capability spending the custodian's balances.
func (b *Backend) Vault() nftstake.FungibleVault {
	return tokens.Vault{Ledger: b.ledger, Holder: b.cfg.Custodian}
}

// Collection exposes the collection for inspection.
func (b *Backend) Collection() *tokens.Collection { return b.collection }

// Balances exposes the fungible ledger for inspection.
func (b *Backend) Balances() *tokens.Ledger { return b.ledger }

// Stage queues the current token state into batch. Attached to the ledger
// store, it lands in the same write as the ledger records.
func (b *Backend) Stage(batch *storage.Batch) error {
	encoded, err := rlp.EncodeToBytes(&backendRecord{
		Collection: b.collection.State(),
		Balances:   b.ledger.State(),
	})
	if err != nil {
		return err
	}
	batch.Put(backendKey, encoded)
	return nil
}

// Save writes the current token state on its own.
func (b *Backend) Save() error {
	batch := storage.NewBatch()
	if err := b.Stage(batch); err != nil {
		return err
	}
	return b.db.Write(batch)
}
