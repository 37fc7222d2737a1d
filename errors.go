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

import "fmt"

// All bridge failures are fatal for the current task attempt; the bridge
// never retries. Retry, if any, belongs to the surrounding task retry
// mechanism.

// StartupError reports a worker that exited before completing the
// handshake, typically from a syntax error in user code.
type StartupError struct {
	Task        string
	Diagnostics string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("external worker for task %q terminated prematurely during startup%s", e.Task, suffix(e.Diagnostics))
}

// WorkerError reports an in-band error signal from the worker, a
// user level failure in the external computation.
type WorkerError struct {
	Task        string
	Diagnostics string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("external worker for task %q terminated prematurely due to an error%s", e.Task, suffix(e.Diagnostics))
}

// TimeoutError reports a worker that stopped responding within the
// configured read timeout.
type TimeoutError struct {
	Task        string
	Diagnostics string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("external worker for task %q stopped responding%s", e.Task, suffix(e.Diagnostics))
}

// ProtocolError reports a bridge/worker protocol mismatch, such as a
// buffer request against an exhausted source.
type ProtocolError struct {
	Task   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation on task %q: %s", e.Task, e.Reason)
}

func suffix(diagnostics string) string {
	if diagnostics == "" {
		return ""
	}
	return ":\n" + diagnostics
}
