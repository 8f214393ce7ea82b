package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveDispatchIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, time.Now())

	m.ObserveDispatch("handled", 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "lattice_dispatches_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatal("expected lattice_dispatches_total to be registered")
	}
	if len(found.Metric) != 1 || found.Metric[0].GetCounter().GetValue() != 1 {
		t.Fatalf("counter metrics = %+v, want one sample at 1", found.Metric)
	}
}

func TestObserveReloadTracksSwapsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, time.Now())

	m.ObserveReload(true, 12)
	m.ObserveReload(false, 0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]*dto.MetricFamily{}
	for _, f := range families {
		names[f.GetName()] = f
	}
	if names["lattice_registry_swaps_total"].Metric[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one registry swap recorded")
	}
	if names["lattice_reload_failures_total"].Metric[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one reload failure recorded")
	}
	if names["lattice_registry_verbs"].Metric[0].GetGauge().GetValue() != 12 {
		t.Fatal("expected verb gauge set to 12 after the successful swap")
	}
}
