package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks per-phase timing for the protocol operations.
type MetricsCollector struct {
	mu sync.RWMutex

	registrationCount int
	registrationTotal time.Duration
	registrationFirst time.Time
	registrationLast  time.Time

	ballotCount int
	ballotTotal time.Duration
	ballotFirst time.Time
	ballotLast  time.Time

	tallyCount int
	tallyTotal time.Duration
	tallyFirst time.Time
	tallyLast  time.Time
}

// OperationMetrics contains timing information for one phase.
type OperationMetrics struct {
	Count          int       `json:"count"`
	ProcessingTime int64     `json:"processing_time_ms"`
	FirstAt        time.Time `json:"first_at,omitempty"`
	LastAt         time.Time `json:"last_at,omitempty"`
}

// MetricsResponse provides the metrics for all phases.
type MetricsResponse struct {
	Registration OperationMetrics `json:"registration"`
	Voting       OperationMetrics `json:"voting"`
	Tally        OperationMetrics `json:"tally"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRegistration records one registration attempt.
func (mc *MetricsCollector) RecordRegistration(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.registrationCount == 0 {
		mc.registrationFirst = now
	}
	mc.registrationCount++
	mc.registrationLast = now
	mc.registrationTotal += duration
}

// RecordBallot records one ballot submission attempt.
func (mc *MetricsCollector) RecordBallot(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.ballotCount == 0 {
		mc.ballotFirst = now
	}
	mc.ballotCount++
	mc.ballotLast = now
	mc.ballotTotal += duration
}

// RecordTally records one tally claim attempt.
func (mc *MetricsCollector) RecordTally(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.tallyCount == 0 {
		mc.tallyFirst = now
	}
	mc.tallyCount++
	mc.tallyLast = now
	mc.tallyTotal += duration
}

// GetMetrics returns current metrics for all phases.
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		Registration: OperationMetrics{
			Count:          mc.registrationCount,
			ProcessingTime: mc.registrationTotal.Milliseconds(),
			FirstAt:        mc.registrationFirst,
			LastAt:         mc.registrationLast,
		},
		Voting: OperationMetrics{
			Count:          mc.ballotCount,
			ProcessingTime: mc.ballotTotal.Milliseconds(),
			FirstAt:        mc.ballotFirst,
			LastAt:         mc.ballotLast,
		},
		Tally: OperationMetrics{
			Count:          mc.tallyCount,
			ProcessingTime: mc.tallyTotal.Milliseconds(),
			FirstAt:        mc.tallyFirst,
			LastAt:         mc.tallyLast,
		},
	}
}

// Reset clears all metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.registrationCount = 0
	mc.registrationTotal = 0
	mc.registrationFirst = time.Time{}
	mc.registrationLast = time.Time{}

	mc.ballotCount = 0
	mc.ballotTotal = 0
	mc.ballotFirst = time.Time{}
	mc.ballotLast = time.Time{}

	mc.tallyCount = 0
	mc.tallyTotal = 0
	mc.tallyFirst = time.Time{}
	mc.tallyLast = time.Time{}
}
