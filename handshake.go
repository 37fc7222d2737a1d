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
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"tern.dev/streambridge/internal/netutil"
)

// preambleMode is the literal mode tag opening the handshake preamble.
const preambleMode = "operator"

// listen binds the bridge's listening endpoint on the loopback interface,
// either to any ephemeral port or to the first free port of the
// configured range.
func (b *Bridge) listen() (net.Listener, error) {
	if b.cfg.PortRange == "" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		return ln, errors.Wrap(err, "binding ephemeral port")
	}
	ports, err := netutil.ParsePortRange(b.cfg.PortRange)
	if err != nil {
		return nil, errors.Wrap(err, "parsing port range")
	}
	for _, port := range ports {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return ln, nil
		}
	}
	return nil, errors.Errorf("no free port in range %q", b.cfg.PortRange)
}

// writePreamble sends the handshake preamble on the worker's stdin:
// mode tag, port, bridge instance identifier, then the input and output
// scratch paths, each newline terminated.
func (b *Bridge) writePreamble(w io.Writer, port int) error {
	_, err := fmt.Fprintf(w, "%s\n%d\n%s\n%s\n%s\n",
		preambleMode, port, b.instance, b.inPath, b.outPath)
	return errors.Wrap(err, "writing handshake preamble")
}

// awaitConnection blocks until the worker connects back. Outside of debug
// mode the accept carries a deadline; a worker that never dials in is
// reported as unresponsive with the captured diagnostics.
func (b *Bridge) awaitConnection() error {
	if !b.cfg.Debug {
		if tl, ok := b.ln.(*net.TCPListener); ok {
			if err := tl.SetDeadline(time.Now().Add(b.cfg.readTimeout())); err != nil {
				return errors.Wrap(err, "arming accept deadline")
			}
		}
	}
	conn, err := b.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &TimeoutError{Task: b.name, Diagnostics: b.diags.String()}
		}
		return errors.Wrap(err, "accepting worker connection")
	}
	b.conn = conn
	b.ln.Close()
	b.ln = nil
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		b.log.Info("worker connected", "endpoint", netutil.SocketAddressToURLString(addr))
	}
	return nil
}
