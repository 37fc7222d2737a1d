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

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Control signals read from the worker. They share one 4 byte big endian
// integer slot with the result size markers of the default branch: the
// reserved values below are fixed external contract and must never
// collide with a legitimate result size encoding. Every other value,
// negative or not, is handed to the Receiver as a size class.
const (
	signalBufferRequest   int32 = 0  // single input mode: fill the input buffer
	signalFinished        int32 = -1 // worker is done, terminal
	signalError           int32 = -2 // worker failed, diagnostics on stderr
	signalBufferRequestS0 int32 = -3 // paired mode: fill slot 0
	signalBufferRequestS1 int32 = -4 // paired mode: fill slot 1
)

// signalLast is the write notification flag byte marking the final chunk
// of the current logical unit. Zero means more data follows.
const signalLast byte = 32

// readSignal reads one 4 byte control frame, arming the read deadline
// outside of debug mode. Timeouts classify as TimeoutError.
func (b *Bridge) readSignal() (int32, error) {
	if !b.cfg.Debug {
		if err := b.conn.SetReadDeadline(time.Now().Add(b.cfg.readTimeout())); err != nil {
			return 0, errors.Wrap(err, "arming read deadline")
		}
	}
	if _, err := io.ReadFull(b.conn, b.frame[:4]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, &TimeoutError{Task: b.name, Diagnostics: b.diags.String()}
		}
		return 0, errors.Wrap(err, "reading control frame")
	}
	return int32(binary.BigEndian.Uint32(b.frame[:4])), nil
}

// sendWriteNotification announces size bytes in the input scratch buffer.
// hasNext marks whether further chunks of the current logical unit follow.
func (b *Bridge) sendWriteNotification(size int, hasNext bool) error {
	binary.BigEndian.PutUint32(b.frame[:4], uint32(size))
	b.frame[4] = 0
	if !hasNext {
		b.frame[4] = signalLast
	}
	_, err := b.conn.Write(b.frame[:5])
	return errors.Wrap(err, "writing notification frame")
}

// sendReadConfirmation acknowledges consumption of one result buffer.
func (b *Bridge) sendReadConfirmation() error {
	_, err := b.conn.Write([]byte{0})
	return errors.Wrap(err, "writing read confirmation")
}

// StreamSingle streams every record of source to the worker and collects
// all results into sink. It returns once the worker signals completion.
// An empty source performs no frame exchange at all.
func (b *Bridge) StreamSingle(source Source, sink Sink) error {
	if !source.HasNext() {
		return nil
	}
	for {
		sig, err := b.readSignal()
		if err != nil {
			return err
		}
		switch sig {
		case signalBufferRequest:
			if !source.HasNext() && !b.sender.HasRemaining(0) {
				return &ProtocolError{Task: b.name, Reason: "worker requested data even though none is available"}
			}
			size, err := b.sender.SendBuffer(source, 0)
			if err != nil {
				return errors.Wrap(err, "encoding input buffer")
			}
			if err := b.sendWriteNotification(size, b.sender.HasRemaining(0) || source.HasNext()); err != nil {
				return err
			}
		case signalFinished:
			return nil
		case signalError:
			return b.workerError()
		default:
			if err := b.receiver.CollectBuffer(sink, int(sig)); err != nil {
				return errors.Wrap(err, "decoding result buffer")
			}
			if err := b.sendReadConfirmation(); err != nil {
				return err
			}
		}
	}
}

// StreamPaired streams two independent sources to the worker, one per
// input slot, for grouped and join style processing. A buffer request
// against an exhausted slot is silently absorbed, since the other slot
// may still hold data. Entered only if either source has a record.
func (b *Bridge) StreamPaired(source0, source1 Source, sink Sink) error {
	if !source0.HasNext() && !source1.HasNext() {
		return nil
	}
	for {
		sig, err := b.readSignal()
		if err != nil {
			return err
		}
		switch sig {
		case signalBufferRequestS0:
			if err := b.fillSlot(source0, 0); err != nil {
				return err
			}
		case signalBufferRequestS1:
			if err := b.fillSlot(source1, 1); err != nil {
				return err
			}
		case signalFinished:
			return nil
		case signalError:
			return b.workerError()
		default:
			if err := b.receiver.CollectBuffer(sink, int(sig)); err != nil {
				return errors.Wrap(err, "decoding result buffer")
			}
			if err := b.sendReadConfirmation(); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) fillSlot(source Source, slot int) error {
	if !source.HasNext() && !b.sender.HasRemaining(slot) {
		return nil
	}
	size, err := b.sender.SendBuffer(source, slot)
	if err != nil {
		return errors.Wrapf(err, "encoding input buffer for slot %d", slot)
	}
	return b.sendWriteNotification(size, b.sender.HasRemaining(slot) || source.HasNext())
}
