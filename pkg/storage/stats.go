package storage

import "sync/atomic"

// Stats counts storage operations. A nil *Stats is valid and counts nothing.
type Stats struct {
	gets         atomic.Uint64
	puts         atomic.Uint64
	deletes      atomic.Uint64
	outdated     atomic.Uint64
	errors       atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

func (s *Stats) get(n int) {
	if s == nil {
		return
	}
	s.gets.Add(1)
	s.bytesRead.Add(uint64(n))
}

func (s *Stats) put(n int) {
	if s == nil {
		return
	}
	s.puts.Add(1)
	s.bytesWritten.Add(uint64(n))
}

func (s *Stats) delete() {
	if s == nil {
		return
	}
	s.deletes.Add(1)
}

func (s *Stats) outdatedWrite() {
	if s == nil {
		return
	}
	s.outdated.Add(1)
}

func (s *Stats) failure() {
	if s == nil {
		return
	}
	s.errors.Add(1)
}

// Snapshot returns the current counter values
func (s *Stats) Snapshot() map[string]uint64 {
	if s == nil {
		return nil
	}
	return map[string]uint64{
		"gets":          s.gets.Load(),
		"puts":          s.puts.Load(),
		"deletes":       s.deletes.Load(),
		"outdated":      s.outdated.Load(),
		"errors":        s.errors.Load(),
		"bytes_read":    s.bytesRead.Load(),
		"bytes_written": s.bytesWritten.Load(),
	}
}
