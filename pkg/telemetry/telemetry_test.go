package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/korora-tech/dhd/pkg/engine"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level   string
		wantErr bool
	}{
		{"", false},
		{"debug", false},
		{"warn", false},
		{"verbose", true},
	}
	for _, tc := range cases {
		_, err := NewLogger(LoggingConfig{Level: tc.level})
		if tc.wantErr && err == nil {
			t.Errorf("level %q: expected error", tc.level)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("level %q: %v", tc.level, err)
		}
	}
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.AtomFinished("package_install", engine.StateChanged, 120*time.Millisecond)
	m.AtomFinished("package_install", engine.StateSatisfied, 5*time.Millisecond)
	m.RunFinished(engine.ModuleChanged, 2*time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`dhd_atoms_finished_total{kind="package_install",state="changed"} 1`,
		`dhd_atoms_finished_total{kind="package_install",state="satisfied"} 1`,
		`dhd_runs_finished_total{status="changed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestDisabledTracerIsUsable(t *testing.T) {
	ctx := context.Background()
	tracer, err := NewTracer(ctx, TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}

	spanCtx, span := tracer.Start(ctx, "plan")
	if spanCtx == nil {
		t.Fatal("nil context from Start")
	}
	span.End()

	if err := tracer.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestTracerRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracer(context.Background(), TracingConfig{Enabled: true, Exporter: "jaegerx"}, "test")
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
