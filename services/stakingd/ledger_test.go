package stakingd

import (
	"bytes"
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/native/nftstake"
	"github.com/tuturu-tech/nft-staking/observability/logging"
	telemetry "github.com/tuturu-tech/nft-staking/observability/otel"
	"github.com/tuturu-tech/nft-staking/storage"
)

func TestLedgerOperationsAreTraced(t *testing.T) {
	ts := startService(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ts.svc.Ledger.SetTracer(tp.Tracer("stakingd/ledger"))

	ctx := context.Background()
	require.NoError(t, ts.svc.Ledger.Stake(ctx, alice, []uint64{1}))
	err := ts.svc.Ledger.Withdraw(ctx, bob, []uint64{1})
	require.ErrorIs(t, err, stakeerrors.ErrNotCallersToken)

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	require.Equal(t, "ledger.stake", ended[0].Name())
	require.Equal(t, codes.Ok, ended[0].Status().Code)

	failed := ended[1]
	require.Equal(t, "ledger.withdraw", failed.Name())
	require.Equal(t, codes.Error, failed.Status().Code)
	require.NotEmpty(t, failed.Events())
	attrs := map[string]string{}
	for _, kv := range failed.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	require.Equal(t, "withdraw", attrs[string(telemetry.OperationKey)])
	require.Equal(t, "unauthorised", attrs["stakingd.outcome"])
}

func TestUnreadableOutstandingIsLoggedNotRecorded(t *testing.T) {
	backing := storage.NewMemDB()
	overflowed := new(uint256.Int).SetAllOne()
	err := nftstake.NewKVStore(backing).Save(nftstake.GlobalRecord{
		Rate:        100,
		Index:       overflowed.Bytes(),
		LastUpdate:  1_000,
		TotalStaked: 1,
	}, []nftstake.AccountRecord{{Account: alice, Units: []uint64{1}}}, nil)
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := logging.SetupWriter(&logs, "stakingd", "test")
	svc, err := buildOn(testConfig(t, t.TempDir(), true), &failingDB{Database: backing}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	_, err = svc.Engine.OutstandingRewards()
	require.Error(t, err)
	require.Contains(t, logs.String(), "outstanding rewards unavailable")
}
