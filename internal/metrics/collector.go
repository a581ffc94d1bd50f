// Package metrics counts server-side protocol activity.
//
// The Collector is shared by every session of one server. It only holds
// counters; sessions never read each other's state through it.
package metrics

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	SessionsAccepted int64
	SessionsClosed   int64
	CapturesOK       int64
	CapturesFailed   int64
	KeepAlives       int64
	ProtocolErrors   int64
	PowerOffs        int64
	BytesSent        int64
}

// SessionsActive is the number of sessions accepted but not yet closed.
func (s Snapshot) SessionsActive() int64 {
	return s.SessionsAccepted - s.SessionsClosed
}

// MarshalLogObject lets a Snapshot be logged with zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("sessions_accepted", s.SessionsAccepted)
	enc.AddInt64("sessions_closed", s.SessionsClosed)
	enc.AddInt64("captures_ok", s.CapturesOK)
	enc.AddInt64("captures_failed", s.CapturesFailed)
	enc.AddInt64("keepalives", s.KeepAlives)
	enc.AddInt64("protocol_errors", s.ProtocolErrors)
	enc.AddInt64("power_offs", s.PowerOffs)
	enc.AddInt64("bytes_sent", s.BytesSent)
	return nil
}

var _ zapcore.ObjectMarshaler = Snapshot{}

// Collector accumulates counters. Safe for concurrent use; all methods are
// nil-receiver safe so callers may run without metrics.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) add(f func(*Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

func (c *Collector) IncSessionAccepted() { c.add(func(s *Snapshot) { s.SessionsAccepted++ }) }
func (c *Collector) IncSessionClosed()   { c.add(func(s *Snapshot) { s.SessionsClosed++ }) }
func (c *Collector) IncKeepAlive()       { c.add(func(s *Snapshot) { s.KeepAlives++ }) }
func (c *Collector) IncProtocolError()   { c.add(func(s *Snapshot) { s.ProtocolErrors++ }) }
func (c *Collector) IncPowerOff()        { c.add(func(s *Snapshot) { s.PowerOffs++ }) }

// RecordCapture counts one capture outcome and the image bytes sent.
func (c *Collector) RecordCapture(ok bool, n int) {
	c.add(func(s *Snapshot) {
		if ok {
			s.CapturesOK++
			s.BytesSent += int64(n)
		} else {
			s.CapturesFailed++
		}
	})
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Field returns the snapshot as a zap field.
func (c *Collector) Field() zap.Field {
	return zap.Object("metrics", c.Snapshot())
}
