// internal/metrics/types.go
package metrics

import "time"

// ModelMetrics is the persisted document for a single model's aggregated data.
type ModelMetrics struct {
	ModelName      string    `json:"model_name"`
	LastUpdatedUTC time.Time `json:"last_updated_utc"`

	TotalRequests int64 `json:"total_requests"`
	Completed     int64 `json:"completed"`
	Aborted       int64 `json:"aborted"`
	Failed        int64 `json:"failed"`

	// Timing and size statistics cover completed streams only.
	TTFTMillis          RunningStat `json:"ttft_ms"`
	TotalDurationMillis RunningStat `json:"total_duration_ms"`
	OutputChars         RunningStat `json:"output_chars"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Outcome is how a stream ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeAborted
	OutcomeFailed
)

// Sample is one observed stream.
type Sample struct {
	Model       string
	Outcome     Outcome
	TTFT        time.Duration
	Duration    time.Duration
	OutputChars int
	// FirstChunk is false when the stream ended before any text arrived.
	FirstChunk bool
}
