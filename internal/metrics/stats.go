package metrics

import (
	"math"
	"sort"
	"time"

	"peerctl/internal/model"
)

// Summary is a statistics snapshot of daemon calls of one kind.
type Summary struct {
	Kind        string        `json:"kind"`
	Count       int           `json:"count"`
	Successes   int           `json:"successes"`
	Failures    int           `json:"failures"`
	Timeouts    int           `json:"timeouts"`
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	AvgDuration time.Duration `json:"avg_duration"`
	P95Duration time.Duration `json:"p95_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Summarize computes a summary of the events of the given kind at or after since.
func Summarize(items []model.Event, kind string, since time.Time) Summary {
	filtered := make([]model.Event, 0, len(items))
	for _, ev := range items {
		if ev.Kind != kind {
			continue
		}
		if ev.Timestamp.After(since) || ev.Timestamp.Equal(since) {
			filtered = append(filtered, ev)
		}
	}

	if len(filtered) == 0 {
		return Summary{Kind: kind}
	}

	s := Summary{
		Kind:        kind,
		Count:       len(filtered),
		From:        filtered[0].Timestamp,
		To:          filtered[0].Timestamp,
		MinDuration: time.Duration(math.MaxInt64),
	}
	values := make([]float64, 0, len(filtered))
	var sum time.Duration
	for _, ev := range filtered {
		switch ev.Outcome {
		case "success":
			s.Successes++
		case "timeout":
			s.Timeouts++
		default:
			s.Failures++
		}
		values = append(values, float64(ev.Duration))
		sum += ev.Duration
		if ev.Duration < s.MinDuration {
			s.MinDuration = ev.Duration
		}
		if ev.Duration > s.MaxDuration {
			s.MaxDuration = ev.Duration
		}
		if ev.Timestamp.Before(s.From) {
			s.From = ev.Timestamp
		}
		if ev.Timestamp.After(s.To) {
			s.To = ev.Timestamp
		}
	}

	sort.Float64s(values)
	s.P95Duration = time.Duration(percentile(values, 0.95))
	s.AvgDuration = sum / time.Duration(len(filtered))
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
