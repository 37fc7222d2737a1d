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
	"os"

	"github.com/go-json-experiment/json"
	"github.com/pkg/errors"
)

// Plan is the launch manifest the bridge generates for one worker. Its
// path is passed on the worker command line, and workers attached out of
// band in debug mode read it to discover the connection parameters the
// handshake preamble would otherwise carry on stdin.
type Plan struct {
	Instance       string   `json:"instance"`
	TaskName       string   `json:"task_name"`
	TaskIndex      int      `json:"task_index"`
	Port           int      `json:"port"`
	InputPath      string   `json:"input_path"`
	OutputPath     string   `json:"output_path"`
	BroadcastNames []string `json:"broadcast_names,omitempty"`
	Arguments      []string `json:"arguments,omitempty"`
}

// ReadPlan loads a previously written launch plan.
func ReadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, errors.Wrap(err, "reading launch plan")
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, errors.Wrapf(err, "parsing launch plan %q", path)
	}
	return p, nil
}

func writePlan(path string, p Plan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding launch plan")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "writing launch plan")
}
