package web

import (
	"sync/atomic"
)

// BackpressureController bounds the number of requests in flight.
// Requests over capacity are rejected immediately with 503.
type BackpressureController struct {
	capacity      int64
	currentLoad   int64
	rejectedCount int64
}

// NewBackpressureController creates a controller admitting at most capacity
// concurrent requests. A capacity <= 0 admits everything.
func NewBackpressureController(capacity int) *BackpressureController {
	return &BackpressureController{capacity: int64(capacity)}
}

// TryAcquire reserves a slot. It returns false, and counts a rejection, when
// the controller is at capacity.
func (bc *BackpressureController) TryAcquire() bool {
	if bc.capacity <= 0 {
		atomic.AddInt64(&bc.currentLoad, 1)
		return true
	}
	for {
		current := atomic.LoadInt64(&bc.currentLoad)
		if current >= bc.capacity {
			atomic.AddInt64(&bc.rejectedCount, 1)
			return false
		}
		if atomic.CompareAndSwapInt64(&bc.currentLoad, current, current+1) {
			return true
		}
	}
}

// Release frees a slot acquired with TryAcquire.
func (bc *BackpressureController) Release() {
	atomic.AddInt64(&bc.currentLoad, -1)
}

// GetMetrics returns current backpressure metrics
func (bc *BackpressureController) GetMetrics() BackpressureMetrics {
	currentLoad := atomic.LoadInt64(&bc.currentLoad)
	m := BackpressureMetrics{
		Capacity:      bc.capacity,
		CurrentLoad:   currentLoad,
		RejectedCount: atomic.LoadInt64(&bc.rejectedCount),
	}
	if bc.capacity > 0 {
		m.Utilization = float64(currentLoad) / float64(bc.capacity) * 100
	}
	return m
}

// BackpressureMetrics provides backpressure statistics
type BackpressureMetrics struct {
	Capacity      int64
	CurrentLoad   int64
	RejectedCount int64
	Utilization   float64 // percent of Capacity
}
