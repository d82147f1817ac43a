package api

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/graychat-core/internal/room"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestObserveDecision_Results(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.observeDecision(room.ActionRead, nil)
	m.observeDecision(room.ActionWrite, room.ErrAuthRequired)
	m.observeDecision(room.ActionManage, room.ErrForbidden)

	tests := []struct {
		action, result string
	}{
		{"read", "allow"},
		{"write", "auth_required"},
		{"manage", "forbidden"},
	}
	for _, tt := range tests {
		if got := counterValue(t, m.decisions.WithLabelValues(tt.action, tt.result)); got != 1 {
			t.Errorf("decisions{%s,%s} = %v, want 1", tt.action, tt.result, got)
		}
	}
}

func TestObserveRequest(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())
	m.observeRequest("GET", 404, 0)

	if got := counterValue(t, m.requests.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("requests{GET,404} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}
