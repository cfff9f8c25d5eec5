package metrics

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFarmMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFarmMetrics(reg)

	m.ObserveOperation("stake", nil)
	m.ObserveOperation("stake", nil)
	m.ObserveOperation("stake", errors.New("boom"))
	m.ObserveOperation("", nil)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")); got != 2 {
		t.Fatalf("expected 2 ok stakes, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "error")); got != 1 {
		t.Fatalf("expected 1 failed stake, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "ok")); got != 1 {
		t.Fatalf("expected unnamed operation bucketed as unknown, got %v", got)
	}

	m.SetAccumulator(big.NewInt(40), big.NewInt(10), big.NewInt(7), 1234)
	if got := testutil.ToFloat64(m.totalStaked); got != 40 {
		t.Fatalf("expected total staked 40, got %v", got)
	}
	if got := testutil.ToFloat64(m.periodFinish); got != 1234 {
		t.Fatalf("expected period finish 1234, got %v", got)
	}

	m.AddRewardsPaid(big.NewInt(5))
	m.AddRewardsPaid(big.NewInt(-5))
	m.AddRewardsFunded(big.NewInt(100))
	if got := testutil.ToFloat64(m.rewardsPaid); got != 5 {
		t.Fatalf("expected 5 paid, got %v", got)
	}
	if got := testutil.ToFloat64(m.rewardsFunded); got != 100 {
		t.Fatalf("expected 100 funded, got %v", got)
	}

	if count, err := testutil.GatherAndCount(reg); err != nil || count == 0 {
		t.Fatalf("expected registered collectors, count=%d err=%v", count, err)
	}
}

func TestNilFarmMetricsAreSafe(t *testing.T) {
	var m *FarmMetrics
	m.ObserveOperation("stake", nil)
	m.SetAccumulator(nil, nil, nil, 0)
	m.AddRewardsPaid(big.NewInt(1))
	m.AddRewardsFunded(big.NewInt(1))
}

func TestRPCMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRPCMetrics(reg)
	m.Observe("farm_stake", 0, 0)
	m.Observe("farm_stake", -32602, 0)
	m.RecordThrottle("")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("farm_stake", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("farm_stake", "-32602")); got != 1 {
		t.Fatalf("expected 1 invalid params error, got %v", got)
	}
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")); got != 1 {
		t.Fatalf("expected 1 throttle, got %v", got)
	}

	var nilMetrics *RPCMetrics
	nilMetrics.Observe("x", 1, 0)
	nilMetrics.RecordThrottle("x")
}
