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

import "github.com/pkg/errors"

// SendBroadcastVariables pushes every broadcast collection named in the
// configuration to the worker, in configuration order, before steady
// state streaming begins. Each collection is one logical unit: its name
// as a single chunk, then its elements in as many chunks as needed. An
// empty or missing collection still sends the name followed by a single
// empty terminal chunk.
func (b *Bridge) SendBroadcastVariables(vars map[string]Source) error {
	names := b.cfg.BroadcastNames

	if err := b.awaitBufferRequest(); err != nil {
		return err
	}
	size, err := b.sender.SendRecord(int32(len(names)))
	if err != nil {
		return errors.Wrap(err, "encoding broadcast count")
	}
	if err := b.sendWriteNotification(size, false); err != nil {
		return err
	}

	for _, name := range names {
		if err := b.awaitBufferRequest(); err != nil {
			return err
		}
		size, err := b.sender.SendRecord(name)
		if err != nil {
			return errors.Wrapf(err, "encoding broadcast name %q", name)
		}
		// Names are always a single chunk.
		if err := b.sendWriteNotification(size, false); err != nil {
			return err
		}

		src := vars[name]
		if src == nil {
			src = emptySource{}
		}
		for first := true; first || src.HasNext() || b.sender.HasRemaining(0); first = false {
			if err := b.awaitBufferRequest(); err != nil {
				return err
			}
			size, err := b.sender.SendBuffer(src, 0)
			if err != nil {
				return errors.Wrapf(err, "encoding broadcast buffer for %q", name)
			}
			if err := b.sendWriteNotification(size, b.sender.HasRemaining(0) || src.HasNext()); err != nil {
				return err
			}
		}
		b.sender.Reset()
	}
	return nil
}

// awaitBufferRequest reads the worker's next control frame during
// broadcast distribution. Any in-band error aborts distribution with the
// captured diagnostics; all other values count as a request.
func (b *Bridge) awaitBufferRequest() error {
	sig, err := b.readSignal()
	if err != nil {
		return err
	}
	if sig == signalError {
		return b.workerError()
	}
	return nil
}
