package metrics

import (
	"testing"
	"time"

	"peerctl/internal/model"
)

func TestSummarize_Basic(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	items := []model.Event{
		{Timestamp: now.Add(-10 * time.Second), Kind: model.EventDaemonSync, Outcome: "success", Duration: 10 * time.Millisecond},
		{Timestamp: now.Add(-5 * time.Second), Kind: model.EventDaemonSync, Outcome: "timeout", Duration: 30 * time.Millisecond},
		{Timestamp: now.Add(-4 * time.Second), Kind: model.EventDaemonRestart, Outcome: "failure", Duration: time.Second},
		{Timestamp: now.Add(-2 * time.Hour), Kind: model.EventDaemonSync, Outcome: "failure", Duration: time.Minute},
	}
	s := Summarize(items, model.EventDaemonSync, now.Add(-1*time.Minute))
	if s.Count != 2 {
		t.Fatalf("count=%d", s.Count)
	}
	if s.Successes != 1 || s.Timeouts != 1 || s.Failures != 0 {
		t.Fatalf("outcomes=%d/%d/%d", s.Successes, s.Timeouts, s.Failures)
	}
	if s.AvgDuration != 20*time.Millisecond {
		t.Fatalf("avg=%v", s.AvgDuration)
	}
	if s.MinDuration != 10*time.Millisecond || s.MaxDuration != 30*time.Millisecond {
		t.Fatalf("min/max=%v/%v", s.MinDuration, s.MaxDuration)
	}
	if s.P95Duration != 30*time.Millisecond {
		t.Fatalf("p95=%v", s.P95Duration)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, model.EventDaemonSync, time.Time{})
	if s.Count != 0 || s.MinDuration != 0 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentile(values, 1); got != 4 {
		t.Fatalf("p100=%v", got)
	}
}
