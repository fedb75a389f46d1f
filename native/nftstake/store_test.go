package nftstake

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tuturu-tech/nft-staking/storage"
)

func TestKVStoreRoundTripOnLevelDB(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	store := NewKVStore(db)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	global := GlobalRecord{Rate: 100, Index: []byte{0x01, 0x02}, LastUpdate: 42, TotalStaked: 3, Paused: true}
	records := []AccountRecord{
		{Account: alice, Units: []uint64{1, 2}, Paid: []byte{0x01}, Rewards: []byte{0x09}},
		{Account: bob, Units: []uint64{3}},
	}
	if err := store.Save(global, records, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if snap.Global.Rate != 100 || snap.Global.LastUpdate != 42 || !snap.Global.Paused || snap.Global.TotalStaked != 3 {
		t.Fatalf("unexpected global %+v", snap.Global)
	}
	if len(snap.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(snap.Accounts))
	}

	global.TotalStaked = 2
	if err := store.Save(global, nil, []common.Address{bob}); err != nil {
		t.Fatalf("save removal: %v", err)
	}
	snap, _, err = store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(snap.Accounts) != 1 || snap.Accounts[0].Account != alice {
		t.Fatalf("removal not applied: %+v", snap.Accounts)
	}
	if got := snap.Accounts[0].Units; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("units %v", got)
	}
}

type keyStager struct {
	key, value []byte
	err        error
}

func (s keyStager) Stage(batch *storage.Batch) error {
	if s.err != nil {
		return s.err
	}
	batch.Put(s.key, s.value)
	return nil
}

func TestKVStoreStagesAttachedRecords(t *testing.T) {
	db := storage.NewMemDB()
	store := NewKVStore(db)
	store.Attach(keyStager{key: []byte("side/state"), value: []byte("v1")})

	if err := store.Save(GlobalRecord{Rate: 100}, nil, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := db.Get([]byte("side/state"))
	if err != nil || string(got) != "v1" {
		t.Fatalf("staged record %q err=%v", got, err)
	}

	failing := NewKVStore(db)
	failing.Attach(keyStager{err: errors.New("encode failed")})
	if err := failing.Save(GlobalRecord{Rate: 100, TotalStaked: 7}, nil, nil); err == nil {
		t.Fatalf("expected stage error")
	}
	snap, _, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Global.TotalStaked != 0 {
		t.Fatalf("ledger records written despite stage failure: %+v", snap.Global)
	}
}
