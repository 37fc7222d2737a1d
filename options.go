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
	"log/slog"

	"tern.dev/streambridge/internal/bridgeopts"
)

// Options configure New with specific features.
// Each function takes a variadic list of options, where properties
// set in later options override the value of previously set properties.
type Options = bridgeopts.Options

// Name sets the task name used in log output and failure messages,
// typically the name of the transform this bridge serves.
func Name(name string) Options {
	return &bridgeopts.Struct{
		Name: name,
	}
}

// Logger sets the destination logger for bridge events and worker output.
// Defaults to [slog.Default].
func Logger(l *slog.Logger) Options {
	return &bridgeopts.Struct{
		Logger: l,
	}
}
