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
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/google/go-cmp/cmp"
)

// fakeSender counts protocol-level encode operations without touching
// any file. Each record contributes 10 bytes to the reported size.
type fakeSender struct {
	perBuffer int // records consumed per SendBuffer; 0 means all

	openPath    string
	closes      int
	sentRecords []any
	buffered    [2]int
	resets      int
}

func (f *fakeSender) Open(path string) error {
	f.openPath = path
	return nil
}

func (f *fakeSender) Close() error {
	f.closes++
	return nil
}

func (f *fakeSender) SendRecord(v any) (int, error) {
	f.sentRecords = append(f.sentRecords, v)
	return 4, nil
}

func (f *fakeSender) SendBuffer(src Source, slot int) (int, error) {
	n := 0
	for src.HasNext() && (f.perBuffer <= 0 || n < f.perBuffer) {
		src.Next()
		n++
	}
	f.buffered[slot] += n
	return n * 10, nil
}

func (f *fakeSender) HasRemaining(int) bool { return false }
func (f *fakeSender) Reset()                { f.resets++ }

type fakeReceiver struct {
	closes    int
	collected []int
}

func (f *fakeReceiver) Open(string) error { return nil }

func (f *fakeReceiver) Close() error {
	f.closes++
	return nil
}

func (f *fakeReceiver) CollectBuffer(sink Sink, size int) error {
	f.collected = append(f.collected, size)
	sink.Collect(fmt.Sprintf("result@%d", size))
	return nil
}

// testBridge wires a bridge straight to one end of an in-memory pipe,
// bypassing process launch and handshake. The returned conn is the
// worker's side of the socket.
func testBridge(t *testing.T, cfg Config, s Sender, r Receiver) (*Bridge, net.Conn) {
	t.Helper()
	b := New(cfg, s, r, Logger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	host, peer := net.Pipe()
	b.conn = host
	b.opened = true
	t.Cleanup(func() {
		host.Close()
		peer.Close()
	})
	return b, peer
}

func protocolConfig() Config {
	return Config{
		TaskName:    "test-task",
		Debug:       true,
		GracePeriod: Duration(10 * time.Millisecond),
	}
}

func sendSignal(t *testing.T, w io.Writer, sig int32) {
	t.Helper()
	var f [4]byte
	binary.BigEndian.PutUint32(f[:], uint32(sig))
	if _, err := w.Write(f[:]); err != nil {
		t.Errorf("writing signal %d: %v", sig, err)
	}
}

func readNotification(t *testing.T, r io.Reader) (size int, last bool) {
	t.Helper()
	var f [5]byte
	if _, err := io.ReadFull(r, f[:]); err != nil {
		t.Errorf("reading write notification: %v", err)
		return 0, true
	}
	return int(int32(binary.BigEndian.Uint32(f[:4]))), f[4] == signalLast
}

func readConfirmation(t *testing.T, r io.Reader) {
	t.Helper()
	var f [1]byte
	if _, err := io.ReadFull(r, f[:]); err != nil {
		t.Errorf("reading read confirmation: %v", err)
	}
	if f[0] != 0 {
		t.Errorf("read confirmation byte = %d, want 0", f[0])
	}
}

func TestStreamSingleRoundTrip(t *testing.T) {
	sender := &fakeSender{perBuffer: 2}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)

	var lasts []bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Pull input until the bridge marks the final chunk.
		for {
			sendSignal(t, worker, signalBufferRequest)
			_, last := readNotification(t, worker)
			lasts = append(lasts, last)
			if last {
				break
			}
		}
		// Hand back two result units, then finish.
		sendSignal(t, worker, 40)
		readConfirmation(t, worker)
		sendSignal(t, worker, 41)
		readConfirmation(t, worker)
		sendSignal(t, worker, signalFinished)
	}()

	var sink SliceSink
	err := b.StreamSingle(NewSliceSource([]string{"a", "b", "c", "d", "e"}), &sink)
	<-done
	if err != nil {
		t.Fatalf("StreamSingle: %v", err)
	}
	if sender.buffered[0] != 5 {
		t.Errorf("encoded %d records, want 5", sender.buffered[0])
	}
	if d := cmp.Diff([]bool{false, false, true}, lasts); d != "" {
		t.Errorf("last chunk flags diff (-want, +got):\n%v", d)
	}
	if d := cmp.Diff([]int{40, 41}, receiver.collected); d != "" {
		t.Errorf("collected size classes diff (-want, +got):\n%v", d)
	}
	if d := cmp.Diff([]any{"result@40", "result@41"}, sink.Values); d != "" {
		t.Errorf("sink diff (-want, +got):\n%v", d)
	}
}

func TestStreamSingleEmptySource(t *testing.T) {
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)
	// No worker script at all: an empty source must not exchange frames.
	worker.Close()

	var sink SliceSink
	if err := b.StreamSingle(NewSliceSource([]string(nil)), &sink); err != nil {
		t.Fatalf("StreamSingle on empty source: %v", err)
	}
	if sender.buffered[0] != 0 || len(receiver.collected) != 0 {
		t.Errorf("empty source exchanged data: %d encoded, %d collected",
			sender.buffered[0], len(receiver.collected))
	}
}

func TestStreamSingleProtocolViolation(t *testing.T) {
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sendSignal(t, worker, signalBufferRequest)
		readNotification(t, worker)
		// The source is now exhausted with no remainder pending.
		sendSignal(t, worker, signalBufferRequest)
	}()

	var sink SliceSink
	err := b.StreamSingle(NewSliceSource([]string{"only"}), &sink)
	<-done
	var pv *ProtocolError
	if !errors.As(err, &pv) {
		t.Fatalf("StreamSingle = %v, want a ProtocolError", err)
	}
}

func TestStreamSingleFinishedImmediately(t *testing.T) {
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sendSignal(t, worker, signalFinished)
	}()

	var sink SliceSink
	err := b.StreamSingle(NewSliceSource([]string{"pending", "records"}), &sink)
	<-done
	if err != nil {
		t.Fatalf("StreamSingle: %v", err)
	}
	if sender.buffered[0] != 0 || len(sink.Values) != 0 {
		t.Errorf("finished-first exchanged data: %d encoded, %d collected",
			sender.buffered[0], len(sink.Values))
	}
}

func TestStreamSingleWorkerError(t *testing.T) {
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)
	// Simulate stderr that the drain captured before the signal.
	b.log.Warn("Traceback: kaboom in user code")

	done := make(chan struct{})
	go func() {
		defer close(done)
		sendSignal(t, worker, signalError)
	}()

	var sink SliceSink
	err := b.StreamSingle(NewSliceSource([]string{"a"}), &sink)
	<-done
	var we *WorkerError
	if !errors.As(err, &we) {
		t.Fatalf("StreamSingle = %v, want a WorkerError", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("error %q does not attach the captured diagnostics", err)
	}
}

func TestStreamSingleTimeout(t *testing.T) {
	cfg := protocolConfig()
	cfg.Debug = false
	cfg.ReadTimeout = Duration(50 * time.Millisecond)
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, _ := testBridge(t, cfg, sender, receiver)

	var sink SliceSink
	err := b.StreamSingle(NewSliceSource([]string{"a"}), &sink)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("StreamSingle against a silent worker = %v, want a TimeoutError", err)
	}
	if !strings.Contains(err.Error(), "stopped responding") {
		t.Errorf("error %q should report an unresponsive worker", err)
	}
}

func TestStreamPairedSlots(t *testing.T) {
	sender := &fakeSender{perBuffer: 2}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)

	var notifications int
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Slot 1 is empty: its requests are absorbed without an answer.
		sendSignal(t, worker, signalBufferRequestS1)
		sendSignal(t, worker, signalBufferRequestS0)
		readNotification(t, worker)
		notifications++
		sendSignal(t, worker, signalBufferRequestS0)
		_, last := readNotification(t, worker)
		notifications++
		if !last {
			t.Error("second slot 0 chunk not marked last")
		}
		sendSignal(t, worker, signalBufferRequestS1)
		sendSignal(t, worker, 33)
		readConfirmation(t, worker)
		sendSignal(t, worker, signalFinished)
	}()

	var sink SliceSink
	err := b.StreamPaired(
		NewSliceSource([]string{"x", "y", "z"}),
		NewSliceSource([]string(nil)),
		&sink)
	<-done
	if err != nil {
		t.Fatalf("StreamPaired: %v", err)
	}
	if sender.buffered[0] != 3 || sender.buffered[1] != 0 {
		t.Errorf("buffered records = %v, want 3 on slot 0 and none on slot 1", sender.buffered)
	}
	if notifications != 2 {
		t.Errorf("worker observed %d notifications, want 2", notifications)
	}
	if d := cmp.Diff([]any{"result@33"}, sink.Values); d != "" {
		t.Errorf("sink diff (-want, +got):\n%v", d)
	}
}

func TestStreamPairedSlot1Only(t *testing.T) {
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sendSignal(t, worker, signalBufferRequestS0)
		sendSignal(t, worker, signalBufferRequestS1)
		_, last := readNotification(t, worker)
		if !last {
			t.Error("single slot 1 chunk not marked last")
		}
		sendSignal(t, worker, signalFinished)
	}()

	var sink SliceSink
	err := b.StreamPaired(
		NewSliceSource([]string(nil)),
		NewSliceSource([]string{"u", "v"}),
		&sink)
	<-done
	if err != nil {
		t.Fatalf("StreamPaired: %v", err)
	}
	if sender.buffered[0] != 0 || sender.buffered[1] != 2 {
		t.Errorf("buffered records = %v, want none on slot 0 and 2 on slot 1", sender.buffered)
	}
}

func TestStreamPairedBothEmpty(t *testing.T) {
	sender := &fakeSender{}
	receiver := &fakeReceiver{}
	b, worker := testBridge(t, protocolConfig(), sender, receiver)
	worker.Close()

	var sink SliceSink
	err := b.StreamPaired(NewSliceSource([]int(nil)), NewSliceSource([]int(nil)), &sink)
	if err != nil {
		t.Fatalf("StreamPaired on two empty sources: %v", err)
	}
}
