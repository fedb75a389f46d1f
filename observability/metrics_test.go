package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerMetricsRecordState(t *testing.T) {
	m := Ledger()
	m.RecordState(4, true, big.NewInt(1_500))
	if got := testutil.ToFloat64(m.totalStaked); got != 4 {
		t.Fatalf("total staked gauge %v", got)
	}
	if got := testutil.ToFloat64(m.paused); got != 1 {
		t.Fatalf("paused gauge %v", got)
	}
	if got := testutil.ToFloat64(m.outstanding); got != 1_500 {
		t.Fatalf("outstanding gauge %v", got)
	}

	before := testutil.ToFloat64(m.rewardsPaid)
	m.RecordPayout(big.NewInt(250))
	m.RecordPayout(big.NewInt(0))
	if got := testutil.ToFloat64(m.rewardsPaid) - before; got != 250 {
		t.Fatalf("rewards paid delta %v", got)
	}

	m.Observe("stake", "ok", 5*time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")); got < 1 {
		t.Fatalf("operation counter %v", got)
	}
}

func TestEventMetricsNormaliseType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("stake.staked"))
	m.RecordEmitted("Stake.Staked")
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("stake.staked")) - before; got != 1 {
		t.Fatalf("emitted delta %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *LedgerMetrics
	m.Observe("stake", "ok", time.Second)
	m.RecordState(1, false, nil)
	m.RecordPayout(big.NewInt(1))
}
