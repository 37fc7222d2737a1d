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

// bridgerun launches a single worker bridge outside of a full job, for
// smoke testing worker scripts and measuring bridge throughput.
//
// Records are read one per line from -input, or generated with -records
// when no input file is given. Results are printed to stdout.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"log/slog"

	"tern.dev/streambridge"
	"tern.dev/streambridge/exchange"
	"tern.dev/streambridge/io/synthetic"
)

func initFlags() *launchConfig {
	var cfg launchConfig
	flag.StringVar(&cfg.ConfigPath, "config", "", "optional YAML bridge configuration")
	flag.StringVar(&cfg.Script, "script", "", "worker script to launch")
	flag.StringVar(&cfg.Input, "input", "", "input file with one record per line")
	flag.IntVar(&cfg.Records, "records", 1000, "synthetic record count when no -input is given")
	flag.StringVar(&cfg.Task, "task", "bridgerun", "task name for logs and failure messages")
	flag.BoolVar(&cfg.Debug, "debug", false, "attach to an externally started worker")
	flag.BoolVar(&cfg.Verbose, "v", false, "log at debug level")
	return &cfg
}

// launchConfig handles configuring the launcher.
type launchConfig struct {
	ConfigPath string
	Script     string
	Input      string
	Records    int
	Task       string
	Debug      bool
	Verbose    bool
}

func main() {
	lc := initFlags()
	flag.Parse()
	if err := run(lc); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(lc *launchConfig) error {
	var cfg streambridge.Config
	if lc.ConfigPath != "" {
		loaded, err := streambridge.LoadConfig(lc.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if lc.Script != "" {
		cfg.ScriptPath = lc.Script
	}
	if lc.Task != "" {
		cfg.TaskName = lc.Task
	}
	if lc.Debug {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if lc.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	source, err := makeSource(lc)
	if err != nil {
		return err
	}

	bridge := streambridge.New(cfg, exchange.NewSender(), exchange.NewReceiver(),
		streambridge.Logger(logger))
	defer bridge.Close()

	if err := bridge.Open(); err != nil {
		return err
	}
	if len(cfg.BroadcastNames) > 0 {
		// The launcher has no broadcast data of its own; distribute the
		// configured names as empty collections.
		if err := bridge.SendBroadcastVariables(nil); err != nil {
			return err
		}
	}

	var sink streambridge.SliceSink
	if err := bridge.StreamSingle(source, &sink); err != nil {
		return err
	}
	if err := bridge.Close(); err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for _, v := range sink.Values {
		fmt.Fprintf(out, "%v\n", v)
	}
	logger.Info("stream complete", "results", len(sink.Values))
	return nil
}

func makeSource(lc *launchConfig) (streambridge.Source, error) {
	if lc.Input == "" {
		return synthetic.New(synthetic.SourceConfig{NumRecords: lc.Records}), nil
	}
	f, err := os.Open(lc.Input)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return streambridge.NewSliceSource(lines), nil
}
