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

// Package proc spawns and supervises external worker processes.
package proc

import (
	"io"
	"os/exec"
	"sync"

	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Worker is a handle to one spawned worker process. Its stdout and stderr
// are drained continuously into the supplied writers so the worker never
// blocks on a full pipe buffer.
type Worker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	exited  chan struct{}
	waitMu  sync.Mutex
	waitErr error
}

// Start launches the worker and begins draining its output.
// stdout and stderr may not be nil.
func Start(path string, args []string, stdout, stderr io.Writer) (*Worker, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening worker stdin")
	}
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening worker stdout")
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening worker stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting worker %q", path)
	}

	w := &Worker{
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, outPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, errPipe)
		return err
	})
	go func() {
		// The pipes must be fully drained before Wait releases them.
		g.Wait()
		err := cmd.Wait()
		w.waitMu.Lock()
		w.waitErr = err
		w.waitMu.Unlock()
		close(w.exited)
	}()
	return w, nil
}

// Stdin is the worker's input channel, used for the handshake preamble.
func (w *Worker) Stdin() io.WriteCloser {
	return w.stdin
}

// Exited is closed once the worker process has terminated and its
// output has been fully drained.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}

// Running reports whether the worker process is still alive.
func (w *Worker) Running() bool {
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// ExitErr returns the result of waiting on the process, once it has exited.
func (w *Worker) ExitErr() error {
	select {
	case <-w.exited:
	default:
		return nil
	}
	w.waitMu.Lock()
	defer w.waitMu.Unlock()
	return w.waitErr
}

// Pid returns the worker's native process identifier, if the process
// handle exposes one.
func (w *Worker) Pid() (int, bool) {
	if w.cmd.Process == nil {
		return 0, false
	}
	return w.cmd.Process.Pid, true
}

// Kill forcibly terminates the worker if it is still running. It prefers
// an unconditional termination signal sent straight to the native pid,
// which is not subject to the signal forwarding limits of the generic
// destroy primitive; where that is unavailable it degrades to the generic
// kill. Failure to resolve or signal the pid is never fatal.
func (w *Worker) Kill(log *slog.Logger) {
	if !w.Running() {
		return
	}
	if pid, ok := w.Pid(); ok {
		if err := killPid(pid); err == nil {
			return
		} else if log != nil {
			log.Warn("direct kill failed, using generic process destroy", "pid", pid, "error", err)
		}
	}
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
}
