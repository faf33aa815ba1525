package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Ticks.WithLabelValues("ok").Inc()
	m.ListingUpdates.WithLabelValues("BUY", "applied").Add(2)
	m.QuotedPrice.WithLabelValues("SELL").Set(4.05)

	if got := testutil.ToFloat64(m.ListingUpdates.WithLabelValues("BUY", "applied")); got != 2 {
		t.Errorf("listing updates = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QuotedPrice.WithLabelValues("SELL")); got != 4.05 {
		t.Errorf("quoted price = %v, want 4.05", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
