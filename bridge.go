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
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tern.dev/streambridge/internal/bridgeopts"
	"tern.dev/streambridge/internal/diag"
	"tern.dev/streambridge/internal/proc"
)

// diagLimit bounds the diagnostic tail attached to failure messages.
const diagLimit = 16 << 10

// Bridge connects one task to one external worker process. It is not safe
// for concurrent use: all protocol operations block the caller and run
// strictly one frame exchange at a time.
type Bridge struct {
	cfg      Config
	name     string
	instance string

	log   *slog.Logger
	diags *diag.Buffer

	sender   Sender
	receiver Receiver

	worker *proc.Worker
	ln     net.Listener
	conn   net.Conn
	unhook func()

	inPath, outPath, planPath string

	opened bool
	closed atomic.Bool

	frame [5]byte
}

// New assembles a bridge from its configuration and collaborators.
// Nothing is spawned until Open.
func New(cfg Config, sender Sender, receiver Receiver, opts ...Options) *Bridge {
	var opt bridgeopts.Struct
	opt.Join(opts...)

	cfg = cfg.withDefaults()
	name := opt.Name
	if name == "" {
		name = cfg.TaskName
	}
	base := opt.Logger
	if base == nil {
		base = slog.Default()
	}

	diags := diag.NewBuffer(diagLimit)
	instance := uuid.NewString()
	log := slog.New(diag.NewHandler(diags, base.Handler())).With(
		slog.String("task", name),
		slog.String("bridge", instance),
	)

	return &Bridge{
		cfg:      cfg,
		name:     name,
		instance: instance,
		log:      log,
		diags:    diags,
		sender:   sender,
		receiver: receiver,
	}
}

// Open binds the listening endpoint, launches the worker, and completes
// the handshake. In debug mode the worker is assumed to be started out of
// band; Open then blocks on the accept with no deadline.
func (b *Bridge) Open() error {
	if b.opened {
		return errors.New("bridge already opened")
	}
	b.opened = true

	if err := b.cfg.validate(); err != nil {
		return err
	}

	base := fmt.Sprintf("bridge-%s-%d", b.instance, b.cfg.TaskIndex)
	b.inPath = filepath.Join(b.cfg.TmpDir, base+"-input")
	b.outPath = filepath.Join(b.cfg.TmpDir, base+"-output")
	b.planPath = filepath.Join(b.cfg.TmpDir, base+"-plan.json")

	if err := b.sender.Open(b.inPath); err != nil {
		return errors.Wrap(err, "opening sender scratch file")
	}
	if err := b.receiver.Open(b.outPath); err != nil {
		return errors.Wrap(err, "opening receiver scratch file")
	}

	// The port must be known before the worker starts so it can be
	// announced in the preamble and the plan.
	ln, err := b.listen()
	if err != nil {
		return err
	}
	b.ln = ln
	port := ln.Addr().(*net.TCPAddr).Port

	if err := writePlan(b.planPath, Plan{
		Instance:       b.instance,
		TaskName:       b.cfg.TaskName,
		TaskIndex:      b.cfg.TaskIndex,
		Port:           port,
		InputPath:      b.inPath,
		OutputPath:     b.outPath,
		BroadcastNames: b.cfg.BroadcastNames,
		Arguments:      b.cfg.Arguments,
	}); err != nil {
		return err
	}

	if b.cfg.Debug {
		b.log.Info("debug mode: waiting for an externally started worker",
			"port", port, "plan", b.planPath)
		return b.awaitConnection()
	}
	return b.startWorker(port)
}

func (b *Bridge) startWorker(port int) error {
	stdout := diag.NewLineWriter(b.log.With(slog.String("stream", "stdout")), slog.LevelInfo)
	stderr := diag.NewLineWriter(b.log.With(slog.String("stream", "stderr")), slog.LevelWarn)

	args := append([]string{"-O", "-B", b.cfg.ScriptPath, b.planPath}, b.cfg.Arguments...)
	worker, err := proc.Start(b.cfg.workerBinary(), args, stdout, stderr)
	if err != nil {
		return errors.Wrapf(err, "%q does not point to a valid worker binary", b.cfg.workerBinary())
	}
	b.worker = worker
	b.unhook = proc.OnShutdown(func() { worker.Kill(b.log) })

	if err := b.writePreamble(worker.Stdin(), port); err != nil {
		// A broken stdin pipe means the worker is already gone.
		select {
		case <-worker.Exited():
			return &StartupError{Task: b.name, Diagnostics: b.diags.String()}
		case <-time.After(b.cfg.gracePeriod()):
			return err
		}
	}

	// Wait out the grace period to catch workers that die during
	// initialization, e.g. a syntax error in the user script.
	select {
	case <-worker.Exited():
		return &StartupError{Task: b.name, Diagnostics: b.diags.String()}
	case <-time.After(b.cfg.gracePeriod()):
	}
	return b.awaitConnection()
}

// Close tears the bridge down: socket, collaborators, worker, shutdown
// hook, launch plan. It is idempotent, and cleanup errors are logged
// rather than returned so that the remaining steps always run.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			b.log.Error("closing socket channel", "error", err)
		}
	} else if b.ln != nil {
		if err := b.ln.Close(); err != nil {
			b.log.Error("closing listener", "error", err)
		}
	}
	if err := b.sender.Close(); err != nil {
		b.log.Error("closing sender", "error", err)
	}
	if err := b.receiver.Close(); err != nil {
		b.log.Error("closing receiver", "error", err)
	}
	if b.worker != nil {
		b.worker.Kill(b.log)
	}
	if b.unhook != nil {
		b.unhook()
	}
	if b.planPath != "" {
		os.Remove(b.planPath)
	}
	return nil
}

// workerError classifies an in-band error signal. The grace period lets
// the stderr drain deliver the complete error message first.
func (b *Bridge) workerError() error {
	time.Sleep(b.cfg.gracePeriod())
	return &WorkerError{Task: b.name, Diagnostics: b.diags.String()}
}
