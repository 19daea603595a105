// internal/metrics/aggregator_test.go
package metrics

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestUpdateRunningStat(t *testing.T) {
	var rs RunningStat
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		updateRunningStat(&rs, v)
	}
	if rs.Count != 8 || rs.Min != 2 || rs.Max != 9 {
		t.Fatalf("unexpected stat %+v", rs)
	}
	if rs.Mean != 5 {
		t.Fatalf("mean=%v want 5", rs.Mean)
	}
	if got := rs.StdDev(); math.Abs(got-2.138) > 0.001 {
		t.Fatalf("stddev=%v", got)
	}
}

func TestRecordOutcomes(t *testing.T) {
	agg := NewAggregator("")
	agg.Record(Sample{Model: "m", Outcome: OutcomeCompleted, TTFT: 100 * time.Millisecond, Duration: time.Second, OutputChars: 10, FirstChunk: true})
	agg.Record(Sample{Model: "m", Outcome: OutcomeAborted})
	agg.Record(Sample{Model: "m", Outcome: OutcomeFailed})

	snap := agg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one model, got %d", len(snap))
	}
	m := snap[0]
	if m.TotalRequests != 3 || m.Completed != 1 || m.Aborted != 1 || m.Failed != 1 {
		t.Fatalf("unexpected counters %+v", m)
	}
	if m.TTFTMillis.Mean != 100 || m.TotalDurationMillis.Mean != 1000 || m.OutputChars.Mean != 10 {
		t.Fatalf("unexpected stats %+v", m)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "metrics.json")
	agg := NewAggregator(path)
	agg.Record(Sample{Model: "b", Outcome: OutcomeCompleted, Duration: time.Second})
	agg.Record(Sample{Model: "a", Outcome: OutcomeCompleted, Duration: time.Second})
	if err := agg.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ModelName != "a" || loaded[1].ModelName != "b" {
		t.Fatalf("unexpected loaded metrics %+v", loaded)
	}

	again := NewAggregator(path)
	again.Record(Sample{Model: "a", Outcome: OutcomeCompleted, Duration: 3 * time.Second})
	snap := again.Snapshot()
	if snap[0].Completed != 2 || snap[0].TotalDurationMillis.Mean != 2000 {
		t.Fatalf("expected stats to continue from disk, got %+v", snap[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || loaded != nil {
		t.Fatalf("expected nil, nil; got %v, %v", loaded, err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No metrics") {
		t.Fatalf("unexpected empty report %q", buf.String())
	}

	buf.Reset()
	agg := NewAggregator("")
	agg.Record(Sample{Model: "gemini-2.5-flash", Outcome: OutcomeCompleted, Duration: time.Second})
	if err := WriteReport(&buf, agg.Snapshot()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "gemini-2.5-flash") {
		t.Fatalf("report missing model: %q", buf.String())
	}
}
