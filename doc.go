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

// Package streambridge connects a data processing task to a long lived
// external worker process, streaming records and control signals to it over
// a private local socket while supervising the worker's lifecycle.
//
// A [Bridge] owns exactly one worker process, one accepted socket connection,
// and one pair of scratch files used by its [Sender] and [Receiver]
// collaborators for payload spillover. The bridge speaks a small framed
// protocol with the worker: the worker sends 4 byte big endian control
// signals requesting input buffers, announcing results, finishing, or
// reporting errors, and the bridge answers with write notifications
// (payload size plus a continuation flag) or read confirmations. The
// payload bytes themselves travel through the scratch files, never over
// the socket, so the bridge treats buffers as opaque.
//
// Streaming comes in two shapes. [Bridge.StreamSingle] drives one input
// source and one result sink, the common map/filter case.
// [Bridge.StreamPaired] drives two independent sources for grouped and
// join style processing, where the worker requests input per slot.
// Broadcast variables are distributed once, before steady state streaming,
// with [Bridge.SendBroadcastVariables].
//
// The bridge is synchronous: every operation blocks its caller until the
// socket round trip completes. The only internal concurrency is a pair of
// goroutines draining the worker's stdout and stderr into the logger and
// the diagnostic buffer that failure messages attach.
package streambridge
