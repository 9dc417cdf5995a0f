package stats

import (
	"sync"
	"time"
)

// TimeSeries is a fixed-capacity rolling window of float64 samples,
// each tagged with a Unix-nano timestamp, safe for concurrent use.
type TimeSeries struct {
	Name       string
	Data       []float64
	Timestamps []int64
	MaxLength  int
	mu         sync.RWMutex
}

// NewTimeSeries creates an empty series capped at maxLength samples.
func NewTimeSeries(name string, maxLength int) *TimeSeries {
	return &TimeSeries{
		Name:       name,
		Data:       make([]float64, 0, maxLength),
		Timestamps: make([]int64, 0, maxLength),
		MaxLength:  maxLength,
	}
}

// Append pushes one sample, evicting the oldest once MaxLength is exceeded.
func (ts *TimeSeries) Append(value float64, timestamp int64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.Data = append(ts.Data, value)
	ts.Timestamps = append(ts.Timestamps, timestamp)

	if len(ts.Data) > ts.MaxLength {
		ts.Data = ts.Data[1:]
		ts.Timestamps = ts.Timestamps[1:]
	}
}

// AppendNow appends a sample stamped with the current time.
func (ts *TimeSeries) AppendNow(value float64) {
	ts.Append(value, time.Now().UnixNano())
}

// GetLast returns a copy of the most recent n samples (all of them if
// n <= 0 or n exceeds the series length).
func (ts *TimeSeries) GetLast(n int) []float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if n <= 0 || n > len(ts.Data) {
		n = len(ts.Data)
	}
	if n == 0 {
		return []float64{}
	}

	result := make([]float64, n)
	copy(result, ts.Data[len(ts.Data)-n:])
	return result
}

// GetAll returns a copy of every sample currently held.
func (ts *TimeSeries) GetAll() []float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	result := make([]float64, len(ts.Data))
	copy(result, ts.Data)
	return result
}

// GetRange returns the samples whose timestamp falls within [startTime, endTime].
func (ts *TimeSeries) GetRange(startTime, endTime int64) []float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	result := make([]float64, 0)
	for i, timestamp := range ts.Timestamps {
		if timestamp >= startTime && timestamp <= endTime {
			result = append(result, ts.Data[i])
		}
	}
	return result
}

// Len returns the current sample count.
func (ts *TimeSeries) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.Data)
}

// Last returns the most recent sample, or ok=false if the series is empty.
func (ts *TimeSeries) Last() (float64, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if len(ts.Data) == 0 {
		return 0, false
	}
	return ts.Data[len(ts.Data)-1], true
}

// Stats computes rolling mean/variance/stddev over the last period samples.
func (ts *TimeSeries) Stats(period int) RollingWindowStats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	return CalculateRollingStats(ts.Data, period)
}

// Mean returns the rolling mean over the last period samples.
func (ts *TimeSeries) Mean(period int) float64 {
	return ts.Stats(period).Mean
}

// StdDev returns the rolling standard deviation over the last period samples.
func (ts *TimeSeries) StdDev(period int) float64 {
	return ts.Stats(period).Std
}

// Clear drops every sample, keeping MaxLength.
func (ts *TimeSeries) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.Data = make([]float64, 0, ts.MaxLength)
	ts.Timestamps = make([]int64, 0, ts.MaxLength)
}

// SeriesManager owns a named set of TimeSeries, one per symbol/metric
// pair, so callers don't need to carry their own map-of-series.
type SeriesManager struct {
	series map[string]*TimeSeries
	mu     sync.RWMutex
}

// NewSeriesManager creates an empty manager.
func NewSeriesManager() *SeriesManager {
	return &SeriesManager{
		series: make(map[string]*TimeSeries),
	}
}

// AddSeries creates and registers a new series under name, overwriting
// any existing series registered under the same name.
func (sm *SeriesManager) AddSeries(name string, maxLength int) *TimeSeries {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ts := NewTimeSeries(name, maxLength)
	sm.series[name] = ts
	return ts
}

// Get looks up a registered series by name.
func (sm *SeriesManager) Get(name string) (*TimeSeries, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ts, ok := sm.series[name]
	return ts, ok
}

// GetOrCreate looks up a series by name, creating one with the given
// capacity on first access.
func (sm *SeriesManager) GetOrCreate(name string, maxLength int) *TimeSeries {
	ts, ok := sm.Get(name)
	if ok {
		return ts
	}
	return sm.AddSeries(name, maxLength)
}

// Remove drops a registered series.
func (sm *SeriesManager) Remove(name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.series, name)
}

// Clear drops every registered series.
func (sm *SeriesManager) Clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.series = make(map[string]*TimeSeries)
}

// List returns every registered series name.
func (sm *SeriesManager) List() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	names := make([]string, 0, len(sm.series))
	for name := range sm.series {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered series.
func (sm *SeriesManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.series)
}
