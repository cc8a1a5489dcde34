// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of the ingestion service.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics shared by every session.
// A nil Collector is safe to use: all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	filesOpened       atomic.Int64
	rotations         atomic.Int64
	idleTimeouts      atomic.Int64
	errorsTotal       atomic.Int64
	transportErrors   atomic.Int64
	filesystemErrors  atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// IdleTimeout records a session torn down by its idle timer.
func (c *Collector) IdleTimeout() {
	if c == nil {
		return
	}
	c.idleTimeouts.Add(1)
}

// IdleTimeouts returns the number of sessions closed for inactivity.
func (c *Collector) IdleTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.idleTimeouts.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// FileOpened records a new output file.  Every file after the first
// one of a session is also counted as a rotation.
func (c *Collector) FileOpened(rotation bool) {
	if c == nil {
		return
	}
	c.filesOpened.Add(1)
	if rotation {
		c.rotations.Add(1)
	}
}

// FilesOpened returns the number of output files created.
func (c *Collector) FilesOpened() int64 {
	if c == nil {
		return 0
	}
	return c.filesOpened.Load()
}

// Rotations returns the number of size-triggered rotations.
func (c *Collector) Rotations() int64 {
	if c == nil {
		return 0
	}
	return c.rotations.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordTransportError counts an unexpected network failure.
func (c *Collector) RecordTransportError(msg string) {
	if c == nil {
		return
	}
	c.transportErrors.Add(1)
	c.RecordError(msg)
}

// RecordFilesystemError counts a failure to persist data.
func (c *Collector) RecordFilesystemError(msg string) {
	if c == nil {
		return
	}
	c.filesystemErrors.Add(1)
	c.RecordError(msg)
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	BytesIn           int64  `json:"bytes_in"`
	FilesOpened       int64  `json:"files_opened"`
	Rotations         int64  `json:"rotations"`
	IdleTimeouts      int64  `json:"idle_timeouts"`
	ErrorsTotal       int64  `json:"errors_total"`
	TransportErrors   int64  `json:"transport_errors"`
	FilesystemErrors  int64  `json:"filesystem_errors"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		FilesOpened:       c.filesOpened.Load(),
		Rotations:         c.rotations.Load(),
		IdleTimeouts:      c.idleTimeouts.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
		TransportErrors:   c.transportErrors.Load(),
		FilesystemErrors:  c.filesystemErrors.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
