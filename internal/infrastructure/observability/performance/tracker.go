// Package performance provides operation timing markers for SiteBeacon
// request, dispatch and actor paths with multi-tenant support.
package performance

import (
	"fmt"
	"sync"
	"time"
)

// Marker records the lifecycle of one tracked operation
type Marker struct {
	Operation string         `json:"operation"`
	TenantID  string         `json:"tenantId"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Completed bool           `json:"completed"`

	mu sync.Mutex
}

// Complete finalizes the marker and computes its duration
func (m *Marker) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Completed {
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation outcome
func (m *Marker) SetSuccess(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success = success
}

// SetError records an error and marks the operation failed
func (m *Marker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success = false
	if err != nil {
		m.Error = err.Error()
	}
}

// AddMetadata attaches a key/value pair to the marker
func (m *Marker) AddMetadata(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Tracker manages performance markers and aggregates per-operation stats
type Tracker struct {
	markers    map[string]*Marker
	maxMarkers int
	started    time.Time
	mu         sync.RWMutex
}

// NewTracker creates a new performance tracker
func NewTracker() *Tracker {
	return &Tracker{
		markers:    make(map[string]*Marker),
		maxMarkers: 10000,
		started:    time.Now(),
	}
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, tenantID string) *Marker {
	marker := &Marker{
		Operation: operation,
		TenantID:  tenantID,
		StartTime: time.Now(),
		Success:   true,
	}

	markerID := fmt.Sprintf("%s_%s_%d", tenantID, operation, time.Now().UnixNano())

	t.mu.Lock()
	if len(t.markers) >= t.maxMarkers {
		// Drop the oldest completed markers to stay bounded
		for id, m := range t.markers {
			if m.Completed {
				delete(t.markers, id)
			}
			if len(t.markers) < t.maxMarkers {
				break
			}
		}
	}
	t.markers[markerID] = marker
	t.mu.Unlock()

	return marker
}

// OperationStats summarizes completed markers for one operation name
type OperationStats struct {
	Operation     string        `json:"operation"`
	Count         int           `json:"count"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
}

// GetStats aggregates completed markers by operation name
func (t *Tracker) GetStats() map[string]*OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := make(map[string]*OperationStats)
	for _, m := range t.markers {
		if !m.Completed {
			continue
		}
		s, ok := stats[m.Operation]
		if !ok {
			s = &OperationStats{Operation: m.Operation}
			stats[m.Operation] = s
		}
		s.Count++
		if !m.Success {
			s.Failures++
		}
		s.TotalDuration += m.Duration
		if m.Duration > s.MaxDuration {
			s.MaxDuration = m.Duration
		}
	}
	return stats
}

// Uptime reports how long this tracker has been live
func (t *Tracker) Uptime() time.Duration {
	return time.Since(t.started)
}
