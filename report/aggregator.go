package report

import "sync"

// Counters are the totals over a sweep.
type Counters struct {
	TotalRuns     int
	TotalFailures int
}

// Aggregator accumulates the results of a sweep. It is safe for concurrent
// use.
type Aggregator struct {
	mu       sync.Mutex
	counters Counters
	results  []Result
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record adds one run.
func (a *Aggregator) Record(r Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters.TotalRuns++
	if !r.Succeeded() {
		a.counters.TotalFailures++
	}

	a.results = append(a.results, r)
}

// Counters returns the current totals.
func (a *Aggregator) Counters() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.counters
}

// Results returns a copy of the recorded results in recording order.
func (a *Aggregator) Results() []Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Result, len(a.results))
	copy(out, a.results)

	return out
}
