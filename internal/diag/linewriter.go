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

package diag

import (
	"bytes"
	"context"
	"io"
	"sync"

	"log/slog"
)

// lineWriter turns a byte stream into one log record per line.
// It is the sink the worker's stdout and stderr drains write into.
type lineWriter struct {
	log   *slog.Logger
	level slog.Level

	mu  sync.Mutex
	rem []byte
}

// NewLineWriter returns a writer logging each complete line written to it
// at the given level. A partial trailing line is held until its newline
// arrives or the writer is closed.
func NewLineWriter(l *slog.Logger, level slog.Level) io.WriteCloser {
	return &lineWriter{log: l, level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rem = append(w.rem, p...)
	for {
		nl := bytes.IndexByte(w.rem, '\n')
		if nl < 0 {
			break
		}
		line := string(bytes.TrimRight(w.rem[:nl], "\r"))
		w.rem = w.rem[nl+1:]
		if line != "" {
			w.log.Log(context.Background(), w.level, line)
		}
	}
	return len(p), nil
}

// Close flushes any unterminated final line.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.rem) > 0 {
		w.log.Log(context.Background(), w.level, string(w.rem))
		w.rem = nil
	}
	return nil
}
