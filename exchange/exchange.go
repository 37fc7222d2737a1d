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

// Package exchange implements the bridge's Sender and Receiver
// collaborators over scratch files. Encoded record buffers travel through
// the files; only their byte lengths cross the socket. The worker reads
// the input file and writes the output file at the sizes the protocol
// announces, so both sides address the same bytes without copying them
// through the connection.
package exchange

import (
	"os"

	"github.com/pkg/errors"

	"tern.dev/streambridge"
)

// DefaultBufferCapacity is the target byte size of one encoded input
// buffer. A single record larger than the capacity still ships as one
// oversized buffer.
const DefaultBufferCapacity = 1 << 20

// Option configures a Sender.
type Option func(*Sender)

// WithBufferCapacity overrides the target buffer capacity.
func WithBufferCapacity(n int) Option {
	return func(s *Sender) {
		s.capacity = n
	}
}

// Sender encodes records into the input scratch file. It tracks, per
// input slot, the one record that was pulled from its source but did not
// fit into the buffer being flushed; that remainder leads the next buffer.
type Sender struct {
	f        *os.File
	path     string
	capacity int
	pending  [2][]byte
}

// NewSender returns an unopened Sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{capacity: DefaultBufferCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the scratch file at path, truncating any previous one.
func (s *Sender) Open(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating input scratch file %q", path)
	}
	s.f, s.path = f, path
	return nil
}

// Close releases and removes the scratch file. Closing an unopened
// Sender is a no-op.
func (s *Sender) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	os.Remove(s.path)
	s.f = nil
	return errors.Wrap(err, "closing input scratch file")
}

// SendRecord encodes a single value as one whole buffer and returns its
// encoded length.
func (s *Sender) SendRecord(v any) (int, error) {
	rec, err := appendRecord(nil, v)
	if err != nil {
		return 0, err
	}
	if err := s.writeBuffer(rec); err != nil {
		return 0, err
	}
	return len(rec), nil
}

// SendBuffer fills one buffer for the given slot: first any remainder
// held for the slot, then as many records from src as fit. A record that
// does not fit is retained for the next call rather than split.
func (s *Sender) SendBuffer(src streambridge.Source, slot int) (int, error) {
	buf := s.pending[slot]
	s.pending[slot] = nil
	for src.HasNext() {
		rec, err := appendRecord(nil, src.Next())
		if err != nil {
			return 0, err
		}
		if len(buf) > 0 && len(buf)+len(rec) > s.capacity {
			s.pending[slot] = rec
			break
		}
		buf = append(buf, rec...)
		if len(buf) >= s.capacity {
			break
		}
	}
	if err := s.writeBuffer(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// HasRemaining reports whether a record is pending for the slot.
func (s *Sender) HasRemaining(slot int) bool {
	return len(s.pending[slot]) > 0
}

// Reset discards all remainder state, called between broadcast
// collections.
func (s *Sender) Reset() {
	s.pending[0] = nil
	s.pending[1] = nil
}

func (s *Sender) writeBuffer(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	// Each buffer overwrites the file head; the announced size tells the
	// worker how many bytes are live, so stale tail bytes are harmless.
	_, err := s.f.WriteAt(buf, 0)
	return errors.Wrap(err, "writing input scratch buffer")
}

// Receiver decodes result buffers the worker wrote to the output scratch
// file.
type Receiver struct {
	f    *os.File
	path string
	buf  []byte
}

// NewReceiver returns an unopened Receiver.
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Open acquires the scratch file at path, creating it if absent.
func (r *Receiver) Open(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return errors.Wrapf(err, "opening output scratch file %q", path)
	}
	r.f, r.path = f, path
	return nil
}

// Close releases and removes the scratch file. Closing an unopened
// Receiver is a no-op.
func (r *Receiver) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	os.Remove(r.path)
	r.f = nil
	return errors.Wrap(err, "closing output scratch file")
}

// CollectBuffer decodes one result unit of the given byte size into sink.
func (r *Receiver) CollectBuffer(sink streambridge.Sink, size int) error {
	if size < 0 {
		return errors.Errorf("invalid result buffer size %d", size)
	}
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	buf := r.buf[:size]
	if _, err := r.f.ReadAt(buf, 0); err != nil {
		return errors.Wrap(err, "reading output scratch buffer")
	}
	for off := 0; off < size; {
		v, n, err := decodeRecord(buf[off:])
		if err != nil {
			return err
		}
		sink.Collect(v)
		off += n
	}
	return nil
}

var (
	_ streambridge.Sender   = (*Sender)(nil)
	_ streambridge.Receiver = (*Receiver)(nil)
)
