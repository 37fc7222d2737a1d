// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package streambridge

// Sender encodes records into the input scratch buffer consumed by the
// worker. The bridge never inspects encoded bytes; it only forwards the
// byte length over the socket and tracks per slot remainder state.
//
// The exchange package provides the file backed implementation.
type Sender interface {
	// Open acquires the scratch file at path.
	Open(path string) error
	// Close releases the scratch file.
	Close() error
	// SendRecord encodes a single value and returns its encoded length.
	SendRecord(v any) (int, error)
	// SendBuffer encodes as many records from src as fit into one buffer
	// for the given input slot, returning the buffer's byte length.
	// A record pulled from src that did not fit is retained as remainder.
	SendBuffer(src Source, slot int) (int, error)
	// HasRemaining reports whether a partially flushed record is pending
	// for the given input slot.
	HasRemaining(slot int) bool
	// Reset discards all remainder state.
	Reset()
}

// Receiver decodes result buffers produced by the worker into a sink.
type Receiver interface {
	// Open acquires the scratch file at path.
	Open(path string) error
	// Close releases the scratch file.
	Close() error
	// CollectBuffer decodes one result unit of the given size or size
	// class into the sink.
	CollectBuffer(sink Sink, size int) error
}

// Source yields the records of one input slot in order.
type Source interface {
	// HasNext reports whether another record is available.
	HasNext() bool
	// Next returns the next record. It must only be called after HasNext
	// has reported true.
	Next() any
}

// Sink receives decoded result records.
type Sink interface {
	Collect(v any)
}

// NewSliceSource returns a Source over the given elements.
func NewSliceSource[E any](elems []E) Source {
	return &sliceSource[E]{elems: elems}
}

type sliceSource[E any] struct {
	elems []E
	pos   int
}

func (s *sliceSource[E]) HasNext() bool {
	return s.pos < len(s.elems)
}

func (s *sliceSource[E]) Next() any {
	v := s.elems[s.pos]
	s.pos++
	return v
}

// SliceSink collects results into Values.
type SliceSink struct {
	Values []any
}

func (s *SliceSink) Collect(v any) {
	s.Values = append(s.Values, v)
}

// emptySource stands in for a missing broadcast collection.
type emptySource struct{}

func (emptySource) HasNext() bool { return false }
func (emptySource) Next() any     { panic("Next on empty source") }
