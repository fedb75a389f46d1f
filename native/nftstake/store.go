package nftstake

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/tuturu-tech/nft-staking/core/rewards"
	"github.com/tuturu-tech/nft-staking/storage"
)

var (
	globalKey     = []byte("nftstake/global")
	accountPrefix = []byte("nftstake/account/")
)

// GlobalRecord is the persisted ledger-wide state.
type GlobalRecord struct {
	Rate        uint64
	Index       []byte
	Remainder   []byte
	LastUpdate  uint64
	Emitted     []byte
	Paid        []byte
	TotalStaked uint64
	Paused      bool
}

// AccountRecord is the persisted state of one depositor.
type AccountRecord struct {
	Account common.Address
	Units   []uint64
	Paid    []byte
	Rewards []byte
}

// Snapshot is everything needed to rebuild an engine.
type Snapshot struct {
	Global   GlobalRecord
	Accounts []AccountRecord
}

// Store persists ledger records. Save must apply all of its arguments
// atomically.
type Store interface {
	Load() (*Snapshot, bool, error)
	Save(global GlobalRecord, updated []AccountRecord, removed []common.Address) error
}

// Stager contributes records that must be written in the same batch as the
// ledger records, such as the state of in-process collaborators.
type Stager interface {
	Stage(batch *storage.Batch) error
}

// KVStore keeps ledger records in a storage.Database as RLP blobs.
type KVStore struct {
	db      storage.Database
	stagers []Stager
}

// NewKVStore wraps db.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

// Attach adds st to every subsequent Save.
func (s *KVStore) Attach(st Stager) {
	if st != nil {
		s.stagers = append(s.stagers, st)
	}
}

func accountKey(addr common.Address) []byte {
	key := make([]byte, 0, len(accountPrefix)+common.AddressLength)
	key = append(key, accountPrefix...)
	return append(key, addr.Bytes()...)
}

// Load returns the stored snapshot. The boolean is false when nothing has
// been persisted yet.
func (s *KVStore) Load() (*Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("nftstake: store not initialised")
	}
	raw, err := s.db.Get(globalKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	snap := &Snapshot{}
	if err := rlp.DecodeBytes(raw, &snap.Global); err != nil {
		return nil, false, fmt.Errorf("nftstake: decode global record: %w", err)
	}
	err = s.db.Iterate(accountPrefix, func(key, value []byte) error {
		var rec AccountRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("nftstake: decode account %x: %w", key[len(accountPrefix):], err)
		}
		if !bytes.Equal(key, accountKey(rec.Account)) {
			return fmt.Errorf("nftstake: account record %x stored under wrong key", rec.Account)
		}
		snap.Accounts = append(snap.Accounts, rec)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// Save writes the global record and account changes in one batch.
func (s *KVStore) Save(global GlobalRecord, updated []AccountRecord, removed []common.Address) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("nftstake: store not initialised")
	}
	batch := storage.NewBatch()
	encoded, err := rlp.EncodeToBytes(&global)
	if err != nil {
		return err
	}
	batch.Put(globalKey, encoded)
	for i := range updated {
		encoded, err := rlp.EncodeToBytes(&updated[i])
		if err != nil {
			return err
		}
		batch.Put(accountKey(updated[i].Account), encoded)
	}
	for _, addr := range removed {
		batch.Delete(accountKey(addr))
	}
	for _, st := range s.stagers {
		if err := st.Stage(batch); err != nil {
			return fmt.Errorf("nftstake: stage records: %w", err)
		}
	}
	return s.db.Write(batch)
}

func (e *Engine) globalRecord() GlobalRecord {
	state := e.acc.State()
	return GlobalRecord{
		Rate:        state.Rate,
		Index:       state.Index.Bytes(),
		Remainder:   state.Remainder.Bytes(),
		LastUpdate:  state.LastUpdate,
		Emitted:     state.Emitted.Bytes(),
		Paid:        e.paid.Bytes(),
		TotalStaked: e.totalStaked,
		Paused:      e.paused,
	}
}

// persist writes the global record plus the current state of addrs. Accounts
// from an earlier failed write are retried along with them.
func (e *Engine) persist(addrs ...common.Address) error {
	if e.store == nil {
		return nil
	}
	if e.unsaved == nil {
		e.unsaved = make(map[common.Address]struct{})
	}
	for _, addr := range addrs {
		e.unsaved[addr] = struct{}{}
	}
	var updated []AccountRecord
	var removed []common.Address
	for addr := range e.unsaved {
		acct, ok := e.accounts[addr]
		if !ok {
			removed = append(removed, addr)
			continue
		}
		updated = append(updated, AccountRecord{
			Account: addr,
			Units:   append([]uint64(nil), acct.units...),
			Paid:    acct.checkpoint.Paid.Bytes(),
			Rewards: acct.checkpoint.Rewards.Bytes(),
		})
	}
	if err := e.store.Save(e.globalRecord(), updated, removed); err != nil {
		return err
	}
	e.unsaved = nil
	return nil
}

// Restore loads previously persisted state from store and keeps writing to it
// after every committed operation. An empty store is seeded with the current
// state.
func (e *Engine) Restore(store Store) error {
	if store == nil {
		return fmt.Errorf("nftstake: nil store")
	}
	snap, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		e.store = store
		addrs := make([]common.Address, 0, len(e.accounts))
		for addr := range e.accounts {
			addrs = append(addrs, addr)
		}
		return e.persist(addrs...)
	}
	if snap.Global.Rate != e.cfg.RewardRate {
		return fmt.Errorf("nftstake: stored reward rate %d does not match configured %d", snap.Global.Rate, e.cfg.RewardRate)
	}

	accounts := make(map[common.Address]*account, len(snap.Accounts))
	units := make(unitSet)
	var total uint64
	for _, rec := range snap.Accounts {
		acct := newAccount()
		acct.add(rec.Units...)
		if len(acct.units) != len(rec.Units) {
			return fmt.Errorf("nftstake: account %s has duplicate units", rec.Account.Hex())
		}
		acct.checkpoint.Paid = new(uint256.Int).SetBytes(rec.Paid)
		acct.checkpoint.Rewards = new(uint256.Int).SetBytes(rec.Rewards)
		for _, id := range acct.units {
			if prev, dup := units[id]; dup {
				return fmt.Errorf("nftstake: unit %d staked by both %s and %s", id, prev.Hex(), rec.Account.Hex())
			}
			units[id] = rec.Account
		}
		total += acct.balance()
		accounts[rec.Account] = acct
	}
	if total != snap.Global.TotalStaked {
		return fmt.Errorf("nftstake: stored total %d does not match %d staked units", snap.Global.TotalStaked, total)
	}

	e.acc = rewards.RestoreAccumulator(rewards.AccumulatorState{
		Rate:       snap.Global.Rate,
		Index:      new(uint256.Int).SetBytes(snap.Global.Index),
		Remainder:  new(uint256.Int).SetBytes(snap.Global.Remainder),
		LastUpdate: snap.Global.LastUpdate,
		Emitted:    new(uint256.Int).SetBytes(snap.Global.Emitted),
	})
	e.paid = new(uint256.Int).SetBytes(snap.Global.Paid)
	e.totalStaked = total
	e.paused = snap.Global.Paused
	e.accounts = accounts
	e.units = units
	e.store = store
	e.logger.Info("nftstake: ledger restored", "accounts", len(accounts), "totalStaked", total)
	return nil
}
