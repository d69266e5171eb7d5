package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-process counters for the review services.
type Metrics struct {
	mu sync.Mutex

	// Submission counters
	submissions       atomic.Int64
	submissionsFailed atomic.Int64
	conflicts         atomic.Int64
	retries           atomic.Int64
	overflowWarnings  atomic.Int64

	// Per-operation metrics, keyed by operation name.
	operations map[string]*OperationMetrics
}

// OperationMetrics represents metrics for one operation or batch job.
type OperationMetrics struct {
	executionCount atomic.Int64
	totalDuration  atomic.Int64 // milliseconds
	errorCount     atomic.Int64
	lastRunTs      atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: make(map[string]*OperationMetrics),
	}
}

// Global metrics instance.
var globalMetrics = NewMetrics()

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordSubmission records a review submission and whether it failed.
func (m *Metrics) RecordSubmission(failed bool) {
	m.submissions.Add(1)
	if failed {
		m.submissionsFailed.Add(1)
	}
}

// RecordConflict records a version conflict seen by the write path.
func (m *Metrics) RecordConflict() {
	m.conflicts.Add(1)
}

// RecordRetry records one retry of a conflicting submission.
func (m *Metrics) RecordRetry() {
	m.retries.Add(1)
}

// RecordOverflow records an engine clamp.
func (m *Metrics) RecordOverflow() {
	m.overflowWarnings.Add(1)
}

// RecordOperation records one execution of an operation.
func (m *Metrics) RecordOperation(operation string, duration time.Duration, err error) {
	om := m.getOperationMetrics(operation)
	om.executionCount.Add(1)
	om.totalDuration.Add(duration.Milliseconds())
	om.lastRunTs.Store(time.Now().Unix())
	if err != nil {
		om.errorCount.Add(1)
	}
}

func (m *Metrics) getOperationMetrics(operation string) *OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	om, ok := m.operations[operation]
	if !ok {
		om = &OperationMetrics{}
		m.operations[operation] = om
	}
	return om
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.submissions.Store(0)
	m.submissionsFailed.Store(0)
	m.conflicts.Store(0)
	m.retries.Store(0)
	m.overflowWarnings.Store(0)

	m.mu.Lock()
	m.operations = make(map[string]*OperationMetrics)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := make([]*OperationSnapshot, 0, len(m.operations))
	for name, om := range m.operations {
		count := om.executionCount.Load()
		snapshot := &OperationSnapshot{
			Operation:      name,
			ExecutionCount: count,
			TotalDuration:  om.totalDuration.Load(),
			ErrorCount:     om.errorCount.Load(),
			LastRunTs:      om.lastRunTs.Load(),
		}
		if count > 0 {
			snapshot.AverageDuration = snapshot.TotalDuration / count
		}
		ops = append(ops, snapshot)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Operation < ops[j].Operation })

	return &MetricsSnapshot{
		Submissions:       m.submissions.Load(),
		SubmissionsFailed: m.submissionsFailed.Load(),
		Conflicts:         m.conflicts.Load(),
		Retries:           m.retries.Load(),
		OverflowWarnings:  m.overflowWarnings.Load(),
		Operations:        ops,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Submissions       int64                `json:"submissions"`
	SubmissionsFailed int64                `json:"submissions_failed"`
	Conflicts         int64                `json:"conflicts"`
	Retries           int64                `json:"retries"`
	OverflowWarnings  int64                `json:"overflow_warnings"`
	Operations        []*OperationSnapshot `json:"operations"`
}

// OperationSnapshot represents metrics for one operation.
type OperationSnapshot struct {
	Operation       string `json:"operation"`
	ExecutionCount  int64  `json:"execution_count"`
	TotalDuration   int64  `json:"total_duration_ms"`
	ErrorCount      int64  `json:"error_count"`
	AverageDuration int64  `json:"average_duration_ms"`
	LastRunTs       int64  `json:"last_run_ts"`
}

// SuccessRate returns the submission success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.Submissions == 0 {
		return 100.0
	}
	return float64(s.Submissions-s.SubmissionsFailed) / float64(s.Submissions) * 100.0
}
