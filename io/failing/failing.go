// Package failing wraps sources with deliberate failures, for testing
// how a pipeline recovers from a crashing task.
package failing

import (
	"sync/atomic"

	"tern.dev/streambridge"
)

// Gate elects exactly one winner among parallel instances sharing it.
// The zero value is ready to use.
type Gate struct {
	fired atomic.Bool
}

// First reports whether the caller is the first to ask. All later calls,
// from any goroutine, return false.
func (g *Gate) First() bool {
	return g.fired.CompareAndSwap(false, true)
}

// New returns a Source that behaves like src, except that the instance
// winning the gate panics with msg on its first record. Sharing one gate
// across the parallel instances of a task injects exactly one failure.
func New(src streambridge.Source, gate *Gate, msg string) streambridge.Source {
	return &source{src: src, gate: gate, msg: msg}
}

type source struct {
	src  streambridge.Source
	gate *Gate
	msg  string
}

func (s *source) HasNext() bool { return s.src.HasNext() }

func (s *source) Next() any {
	if s.gate.First() {
		panic(s.msg)
	}
	return s.src.Next()
}
