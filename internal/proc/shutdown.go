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

package proc

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// The shutdown registry guarantees worker processes are terminated even
// when the host is torn down without an orderly Close. Hooks must be
// idempotent with a concurrently running Close: both may observe an
// already exited worker.

var (
	hookMu      sync.Mutex
	hooks       = map[uint64]func(){}
	hookSeq     uint64
	installOnce sync.Once
)

// OnShutdown registers fn to run when the host receives an interrupt or
// termination signal. The returned remove function deregisters it and is
// safe to call more than once.
func OnShutdown(fn func()) (remove func()) {
	installOnce.Do(installHandler)

	hookMu.Lock()
	hookSeq++
	id := hookSeq
	hooks[id] = fn
	hookMu.Unlock()

	return func() {
		hookMu.Lock()
		delete(hooks, id)
		hookMu.Unlock()
	}
}

func installHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		runHooks()
		// Restore default disposition and re-raise so the host still
		// dies with the conventional signal exit status.
		signal.Reset(os.Interrupt, syscall.SIGTERM)
		if err := raise(sig); err != nil {
			os.Exit(1)
		}
	}()
}

func runHooks() {
	hookMu.Lock()
	fns := make([]func(), 0, len(hooks))
	for _, fn := range hooks {
		fns = append(fns, fn)
	}
	hookMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func raise(sig os.Signal) error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Signal(sig)
}
