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
	"context"

	"log/slog"

	"github.com/jba/slog/withsupport"
)

// Handler is a slog.Handler that tees every record into a Sink, optionally
// forwarding it to a wrapped handler so normal log output is unaffected.
// The bridge installs one over the caller's handler so that anything logged
// about or by the worker is available as diagnostic context later.
type Handler struct {
	sink Sink
	next slog.Handler
	goa  *withsupport.GroupOrAttrs
}

// NewHandler returns a Handler capturing into sink. next may be nil.
func NewHandler(sink Sink, next slog.Handler) *Handler {
	return &Handler{sink: sink, next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next != nil {
		return h.next.Enabled(ctx, level)
	}
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   map[string]any{},
	}
	groups := h.goa.Apply(func(gs []string, a slog.Attr) {
		setAttr(e.Attrs, gs, a)
	})
	r.Attrs(func(a slog.Attr) bool {
		setAttr(e.Attrs, groups, a)
		return true
	})
	h.sink.Record(e)
	if h.next != nil {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.goa = h.goa.WithAttrs(attrs)
	if h.next != nil {
		h2.next = h.next.WithAttrs(attrs)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.goa = h.goa.WithGroup(name)
	if h.next != nil {
		h2.next = h.next.WithGroup(name)
	}
	return &h2
}

// setAttr places a into the map nested under the given group path,
// observing the slog.Handler contract: values resolve, empty attrs drop,
// and groups with empty keys inline their members.
func setAttr(m map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		if len(members) == 0 {
			return
		}
		if a.Key != "" {
			groups = append(groups, a.Key)
		}
		for _, member := range members {
			setAttr(m, groups, member)
		}
		return
	}
	for _, g := range groups {
		next, ok := m[g].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[g] = next
		}
		m = next
	}
	m[a.Key] = a.Value.Any()
}

var _ slog.Handler = (*Handler)(nil)
