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

// Package diag captures worker diagnostic output so failure messages can
// attach the tail of what the worker said before it died.
package diag

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"
)

// Entry is one captured log record in structured form.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Sink receives captured entries.
type Sink interface {
	Record(Entry)
}

// Buffer is a bounded tail of formatted diagnostic lines. It retains the
// most recent limit bytes, dropping the oldest lines first. A Buffer is
// safe for concurrent use; the worker output drains write to it while the
// protocol loop reads it for error messages.
type Buffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

// NewBuffer returns a Buffer retaining at most limit bytes of tail.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Record formats and retains one entry.
func (b *Buffer) Record(e Entry) {
	var sb strings.Builder
	sb.WriteString(e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	sb.WriteByte('\n')
	b.append(sb.String())
}

func (b *Buffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, line...)
	if over := len(b.data) - b.limit; over > 0 {
		// Trim whole lines from the front where possible.
		cut := over
		if nl := bytes.IndexByte(b.data[over:], '\n'); nl >= 0 {
			cut = over + nl + 1
		}
		if cut >= len(b.data) {
			cut = over
		}
		b.data = append(b.data[:0], b.data[cut:]...)
	}
}

// String returns the retained tail.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

var _ Sink = (*Buffer)(nil)
