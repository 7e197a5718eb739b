package fpc

import (
	"sync/atomic"
	"time"
)

// Observer receives transport events. Implementations must be
// thread-safe: methods are called concurrently from sending and
// requesting goroutines and from the receive loop.
type Observer interface {
	ObserveSend(bytes uint64, ool bool, success bool)
	ObserveRecv(bytes uint64, ool bool)
	ObserveRequest(latencyNs uint64, timedOut bool)
}

// Metrics tracks operational statistics for an endpoint. It implements
// Observer; hand one to EndpointConfig.Observer and read it back with
// Snapshot.
type Metrics struct {
	SendOps    atomic.Uint64 // send attempts, failed ones included
	SendErrors atomic.Uint64 // sends that failed
	SendBytes  atomic.Uint64 // frame bytes sent (including OOL bodies)
	RecvOps    atomic.Uint64 // frames received
	RecvBytes  atomic.Uint64 // frame bytes received (including OOL bodies)
	OOLSends   atomic.Uint64 // sends that went out-of-line
	OOLRecvs   atomic.Uint64 // receives that arrived out-of-line
	Requests   atomic.Uint64 // completed requests
	Timeouts   atomic.Uint64 // requests that expired

	TotalRequestNs atomic.Uint64 // cumulative request latency

	StartTime atomic.Int64 // creation timestamp set by NewMetrics (UnixNano)
}

// NewMetrics creates a metrics instance stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) ObserveSend(bytes uint64, ool bool, success bool) {
	m.SendOps.Add(1)
	if !success {
		m.SendErrors.Add(1)
		return
	}
	m.SendBytes.Add(bytes)
	if ool {
		m.OOLSends.Add(1)
	}
}

func (m *Metrics) ObserveRecv(bytes uint64, ool bool) {
	m.RecvOps.Add(1)
	m.RecvBytes.Add(bytes)
	if ool {
		m.OOLRecvs.Add(1)
	}
}

func (m *Metrics) ObserveRequest(latencyNs uint64, timedOut bool) {
	m.Requests.Add(1)
	m.TotalRequestNs.Add(latencyNs)
	if timedOut {
		m.Timeouts.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	SendOps    uint64
	SendErrors uint64
	SendBytes  uint64
	RecvOps    uint64
	RecvBytes  uint64
	OOLSends   uint64
	OOLRecvs   uint64
	Requests   uint64
	Timeouts   uint64

	AvgRequestLatency time.Duration
}

// Snapshot returns a consistent-enough copy for reporting.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		SendOps:    m.SendOps.Load(),
		SendErrors: m.SendErrors.Load(),
		SendBytes:  m.SendBytes.Load(),
		RecvOps:    m.RecvOps.Load(),
		RecvBytes:  m.RecvBytes.Load(),
		OOLSends:   m.OOLSends.Load(),
		OOLRecvs:   m.OOLRecvs.Load(),
		Requests:   m.Requests.Load(),
		Timeouts:   m.Timeouts.Load(),
	}
	if s.Requests > 0 {
		s.AvgRequestLatency = time.Duration(m.TotalRequestNs.Load() / s.Requests)
	}
	return s
}
