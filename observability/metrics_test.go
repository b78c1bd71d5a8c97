package observability

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"yieldrouter/core/events"
	nativecommon "yieldrouter/native/common"
)

func TestAggregatorMetricsCountOutcomes(t *testing.T) {
	m := Aggregator()
	m.ObserveCall("withdraw", nil)
	m.ObserveCall("withdraw", errors.New("boom"))
	m.ObserveCall("withdraw", nativecommon.ErrModulePaused)

	for _, outcome := range []string{"success", "error", "paused"} {
		if got := testutil.ToFloat64(m.calls.WithLabelValues("withdraw", outcome)); got != 1 {
			t.Fatalf("outcome %s: expected 1, got %v", outcome, got)
		}
	}

	m.AddVolume("deposit_to_best", big.NewInt(2_500))
	m.AddVolume("deposit_to_best", big.NewInt(-1))
	if got := testutil.ToFloat64(m.volume.WithLabelValues("deposit_to_best")); got != 2_500 {
		t.Fatalf("expected volume 2500, got %v", got)
	}
}

func TestEventMetricsCountByType(t *testing.T) {
	var emitter events.Emitter = Events()
	emitter.Emit(events.Deposited{Amount: big.NewInt(1)})
	emitter.Emit(events.Deposited{Amount: big.NewInt(2)})
	if got := testutil.ToFloat64(Events().emitted.WithLabelValues(events.TypeDeposited)); got != 2 {
		t.Fatalf("expected 2 deposits counted, got %v", got)
	}
}
