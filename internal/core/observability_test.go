package core

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"resultscore/pkg/domain"
)

func TestExpvarRecorderAndTracerObserveServiceCalls(t *testing.T) {
	ctx := context.Background()
	rec := NewExpvarMetricsRecorder("")
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := newTestService(t, WithMetrics(rec), WithTracer(tracer))

	if !strings.HasPrefix(rec.Name(), "resultscore_pipeline_") {
		t.Fatalf("expvar name = %s", rec.Name())
	}

	seedMarking(t, svc, "exam-1", "MATH", "cand-1", 70)
	if _, err := svc.CalculateGrades(ctx, admin, CalculateGradesRequest{
		ExamID:      "exam-1",
		SubjectCode: "NONE",
		Level:       domain.LevelLower,
	}); err == nil {
		t.Fatalf("expected missing-cohort error")
	}

	snap := rec.Snapshot()
	ingest := snap["ingest_marking"]
	if ingest.Calls != 1 || ingest.Errors != 0 {
		t.Fatalf("ingest stats = %+v", ingest)
	}
	calc := snap["calculate_grades"]
	if calc.Calls != 1 || calc.Errors != 1 {
		t.Fatalf("calculate stats = %+v", calc)
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("spans = %+v", entries)
	}
	if entries[0].Operation != "ingest_marking" || !entries[0].OK || entries[0].Seq != 1 {
		t.Fatalf("first span = %+v", entries[0])
	}
	if entries[1].Operation != "calculate_grades" || entries[1].OK || entries[1].Error == "" {
		t.Fatalf("failed span = %+v", entries[1])
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Fatalf("encoded spans = %d", got)
	}
}

func TestPrometheusRecorderCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	svc := newTestService(t, WithMetrics(rec))

	seedMarking(t, svc, "exam-1", "MATH", "cand-1", 70)
	if _, err := svc.CalculateGrades(ctx, admin, CalculateGradesRequest{
		ExamID:      "exam-1",
		SubjectCode: "NONE",
		Level:       domain.LevelLower,
	}); err == nil {
		t.Fatalf("expected missing-cohort error")
	}

	if got := testutil.ToFloat64(rec.results.WithLabelValues("ingest_marking", "success")); got != 1 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("calculate_grades", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 2 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestOpenMetricsRecorderSelection(t *testing.T) {
	t.Setenv(envMetricsDriver, "none")
	rec, err := OpenMetricsRecorder()
	if err != nil || rec != nil {
		t.Fatalf("none: %v %v", rec, err)
	}

	t.Setenv(envMetricsDriver, "expvar")
	rec, err = OpenMetricsRecorder()
	if err != nil || rec == nil {
		t.Fatalf("expvar: %v %v", rec, err)
	}

	t.Setenv(envMetricsDriver, "graphite")
	if _, err := OpenMetricsRecorder(); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}
