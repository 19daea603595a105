// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/pagesmith/internal/logging"
)

// Aggregator collects and manages per-model stream metrics.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*ModelMetrics
	filePath string
}

// NewAggregator creates an Aggregator persisted at filePath and loads any
// metrics already stored there. An empty filePath keeps metrics in memory only.
func NewAggregator(filePath string) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*ModelMetrics),
		filePath: filePath,
	}
	if err := agg.load(); err != nil {
		logging.LogEvent("[METRICS] ignoring unreadable metrics file %s: %v", filePath, err)
	}
	return agg
}

// Load reads a metrics file without creating an Aggregator. A missing file yields no metrics.
func Load(filePath string) ([]ModelMetrics, error) {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	var metricsSlice []ModelMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		return nil, fmt.Errorf("parse metrics %s: %w", filePath, err)
	}
	sortByModel(metricsSlice)
	return metricsSlice, nil
}

func (a *Aggregator) load() error {
	if a.filePath == "" {
		return nil
	}
	metricsSlice, err := Load(a.filePath)
	if err != nil {
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	for i := range metricsSlice {
		m := metricsSlice[i]
		a.metrics[m.ModelName] = &m
	}
	return nil
}

// Save writes the current metrics to the aggregator's file.
func (a *Aggregator) Save() error {
	if a.filePath == "" {
		return nil
	}
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)

	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if dir := filepath.Dir(a.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := os.WriteFile(a.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Snapshot returns a copy of all metrics ordered by model name.
func (a *Aggregator) Snapshot() []ModelMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]ModelMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		out = append(out, *m)
	}
	sortByModel(out)
	return out
}

// Record updates the metrics for a model with one observed stream.
func (a *Aggregator) Record(sample Sample) {
	logging.LogEvent("[METRICS] Record called for model %s", sample.Model)
	a.mutex.Lock()
	defer a.mutex.Unlock()

	modelMetrics, exists := a.metrics[sample.Model]
	if !exists {
		modelMetrics = &ModelMetrics{ModelName: sample.Model}
		a.metrics[sample.Model] = modelMetrics
	}

	modelMetrics.LastUpdatedUTC = time.Now().UTC()
	modelMetrics.TotalRequests++

	switch sample.Outcome {
	case OutcomeAborted:
		modelMetrics.Aborted++
		return
	case OutcomeFailed:
		modelMetrics.Failed++
		return
	}

	modelMetrics.Completed++
	if sample.FirstChunk {
		updateRunningStat(&modelMetrics.TTFTMillis, float64(sample.TTFT.Milliseconds()))
	}
	updateRunningStat(&modelMetrics.TotalDurationMillis, float64(sample.Duration.Milliseconds()))
	updateRunningStat(&modelMetrics.OutputChars, float64(sample.OutputChars))
}

// Close saves the metrics.
func (a *Aggregator) Close() error {
	return a.Save()
}

// StdDev returns the sample standard deviation.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

func sortByModel(metricsSlice []ModelMetrics) {
	sort.Slice(metricsSlice, func(i, j int) bool {
		return metricsSlice[i].ModelName < metricsSlice[j].ModelName
	})
}
