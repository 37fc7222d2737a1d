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
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWritePreamble(t *testing.T) {
	b := New(protocolConfig(), &fakeSender{}, &fakeReceiver{}, quietLogger())
	b.inPath = "/scratch/in"
	b.outPath = "/scratch/out"

	var buf strings.Builder
	if err := b.writePreamble(&buf, 4711); err != nil {
		t.Fatalf("writePreamble: %v", err)
	}
	want := []string{"operator", "4711", b.instance, "/scratch/in", "/scratch/out", ""}
	if d := cmp.Diff(want, strings.Split(buf.String(), "\n")); d != "" {
		t.Errorf("preamble lines diff (-want, +got):\n%v", d)
	}
}

func TestListenWithinPortRange(t *testing.T) {
	cfg := protocolConfig()
	cfg.PortRange = "49500-49600"
	b := New(cfg, &fakeSender{}, &fakeReceiver{}, quietLogger())

	ln, err := b.listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	if port < 49500 || port > 49600 {
		t.Errorf("bound port %d outside of the configured range", port)
	}
}

func TestListenPortRangeExhausted(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("binding blocker port: %v", err)
	}
	defer blocker.Close()

	cfg := protocolConfig()
	cfg.PortRange = fmt.Sprintf("%d", blocker.Addr().(*net.TCPAddr).Port)
	b := New(cfg, &fakeSender{}, &fakeReceiver{}, quietLogger())

	if _, err := b.listen(); err == nil {
		t.Error("listen on an occupied single port range succeeded, want error")
	}
}

func TestAwaitConnectionTimeout(t *testing.T) {
	cfg := protocolConfig()
	cfg.Debug = false
	cfg.ReadTimeout = Duration(50 * time.Millisecond)
	b := New(cfg, &fakeSender{}, &fakeReceiver{}, quietLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("binding port: %v", err)
	}
	defer ln.Close()
	b.ln = ln

	err = b.awaitConnection()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("awaitConnection with no worker = %v, want a TimeoutError", err)
	}
}

func TestAwaitConnectionAccepts(t *testing.T) {
	cfg := protocolConfig()
	cfg.Debug = false
	cfg.ReadTimeout = Duration(5 * time.Second)
	b := New(cfg, &fakeSender{}, &fakeReceiver{}, quietLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("binding port: %v", err)
	}
	b.ln = ln

	dialed := make(chan error, 1)
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			defer conn.Close()
		}
		dialed <- err
	}()

	if err := b.awaitConnection(); err != nil {
		t.Fatalf("awaitConnection: %v", err)
	}
	defer b.conn.Close()
	if err := <-dialed; err != nil {
		t.Fatalf("worker dial: %v", err)
	}
	if b.ln != nil {
		t.Error("listener still open after accept")
	}
}
