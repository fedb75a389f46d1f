package stakingd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuturu-tech/nft-staking/observability/logging"
	"github.com/tuturu-tech/nft-staking/storage"
)

var errDiskFull = errors.New("disk full")

// failingDB rejects batch writes while fail is set. Close is a no-op so the
// same backing store can be reopened after a restart.
type failingDB struct {
	storage.Database
	fail atomic.Bool
}

func (db *failingDB) Write(batch *storage.Batch) error {
	if db.fail.Load() {
		return errDiskFull
	}
	return db.Database.Write(batch)
}

func (db *failingDB) Close() {}

func restart(t *testing.T, dir string, backing storage.Database) *Service {
	t.Helper()
	logger := logging.SetupWriter(io.Discard, "stakingd", "test")
	svc, err := buildOn(testConfig(t, dir, true), &failingDB{Database: backing}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	svc.Engine.SetNowFunc(func() int64 { return 2_000 })
	return svc
}

func TestFailedWriteLeavesTokensAndLedgerConsistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backing := storage.NewMemDB()
	db := &failingDB{Database: backing}
	logger := logging.SetupWriter(io.Discard, "stakingd", "test")

	first, err := buildOn(testConfig(t, dir, true), db, logger)
	require.NoError(t, err)
	first.Engine.SetNowFunc(func() int64 { return 1_000 })
	require.NoError(t, first.Ledger.Stake(ctx, alice, []uint64{1}))

	db.fail.Store(true)
	err = first.Ledger.Stake(ctx, alice, []uint64{2})
	require.ErrorIs(t, err, errDiskFull)
	status, code := statusFor(err)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal", code)
	require.NoError(t, first.Close())

	second := restart(t, dir, backing)
	require.Equal(t, []uint64{1}, second.Engine.GetStakedUnits(alice))
	require.Equal(t, uint64(1), second.Engine.TotalSupply())
	owner, err := second.Backend.Collection().OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, custodian, owner)
	owner, err = second.Backend.Collection().OwnerOf(2)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	// Neither unit is stranded: the lost stake can be redone and both exit.
	require.NoError(t, second.Ledger.Stake(ctx, alice, []uint64{2}))
	require.NoError(t, second.Ledger.WithdrawAll(ctx, alice))
	require.Equal(t, uint64(3), second.Backend.Collection().BalanceOf(alice))
	require.Equal(t, uint64(0), second.Engine.TotalSupply())
}

func TestWriteAfterFailureCarriesEarlierAccounts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backing := storage.NewMemDB()
	db := &failingDB{Database: backing}
	logger := logging.SetupWriter(io.Discard, "stakingd", "test")

	first, err := buildOn(testConfig(t, dir, true), db, logger)
	require.NoError(t, err)
	first.Engine.SetNowFunc(func() int64 { return 1_000 })

	db.fail.Store(true)
	require.ErrorIs(t, first.Ledger.Stake(ctx, alice, []uint64{1, 2}), errDiskFull)
	db.fail.Store(false)
	require.NoError(t, first.Ledger.Stake(ctx, bob, []uint64{4}))
	require.NoError(t, first.Close())

	second := restart(t, dir, backing)
	require.Equal(t, []uint64{1, 2}, second.Engine.GetStakedUnits(alice))
	require.Equal(t, []uint64{4}, second.Engine.GetStakedUnits(bob))
	require.Equal(t, uint64(3), second.Engine.TotalSupply())
	require.Equal(t, uint64(1), second.Backend.Collection().BalanceOf(alice))
	require.NoError(t, second.Ledger.WithdrawAll(ctx, alice))
	require.Equal(t, uint64(3), second.Backend.Collection().BalanceOf(alice))
}
