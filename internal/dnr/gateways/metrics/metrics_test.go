package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/multierr"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/compiler"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

func TestMetrics_ObserveTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransition(domain.ToggleOn, domain.ModeEnabled, ResultApplied)
	m.ObserveTransition(domain.ToggleOff, domain.ModeEnabled, ResultSuperseded)

	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("on", ResultApplied)); got != 1 {
		t.Fatalf("applied transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("off", ResultSuperseded)); got != 1 {
		t.Fatalf("superseded transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.overlayEnabled); got != 1 {
		t.Fatalf("overlay gauge = %v, want 1", got)
	}
}

func TestMetrics_ObserveBulk(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	fetchErr := multierr.Append(errors.New("a"), errors.New("b"))
	m.ObserveBulk(pipeline.Report{
		StartedAt: time.Unix(1700000000, 0),
		Duration:  2 * time.Second,
		Installed: true,
		FetchErr:  fetchErr,
		Compile:   compiler.Stats{Rules: 42, Duplicates: 3},
	})
	m.ObserveBulk(pipeline.Report{})

	if got := testutil.ToFloat64(m.bulkRules); got != 42 {
		t.Fatalf("bulk rules = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.sourceFailures); got != 2 {
		t.Fatalf("source failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bulkRunsTotal.WithLabelValues(ResultFailed)); got != 1 {
		t.Fatalf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lastBulkSuccessTS); got != 1700000002 {
		t.Fatalf("last success = %v", got)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("expected metrics gather to succeed: %v", err)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.ObserveTransition(domain.ToggleOn, domain.ModeEnabled, ResultApplied)
	m.ObserveBulk(pipeline.Report{})
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveTransition(domain.ToggleOn, domain.ModeEnabled, ResultApplied)

	rec := httptest.NewRecorder()
	m.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dnrc_transitions_total") {
		t.Fatalf("expected transitions metric in output")
	}
}
