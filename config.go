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
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	// DefaultGracePeriod is how long the bridge waits before checking for
	// an early worker crash, and how long it lets the stderr drain settle
	// after an in-band error signal.
	DefaultGracePeriod = 2 * time.Second
	// DefaultReadTimeout bounds every blocking socket read outside of
	// debug mode.
	DefaultReadTimeout = 30 * time.Second
)

// Duration wraps time.Duration so it can be written as "2s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config carries everything one bridge instance needs to launch and talk
// to its worker.
type Config struct {
	// TaskName appears in log output and failure messages.
	TaskName string `yaml:"task_name"`
	// TaskIndex distinguishes parallel instances of the same task, so
	// their scratch files never collide.
	TaskIndex int `yaml:"task_index"`

	// WorkerVersion selects the worker executable: 2 for Python2Binary,
	// otherwise Python3Binary.
	WorkerVersion int      `yaml:"worker_version"`
	Python2Binary string   `yaml:"python2_binary"`
	Python3Binary string   `yaml:"python3_binary"`
	ScriptPath    string   `yaml:"script_path"`
	Arguments     []string `yaml:"arguments"`

	// TmpDir holds the scratch files and the launch plan.
	TmpDir string `yaml:"tmp_dir"`
	// PortRange optionally constrains the listening port, e.g.
	// "50100-50200,51234". Empty means any ephemeral port.
	PortRange string `yaml:"port_range"`
	// Debug assumes the worker is started out of band and disables all
	// timeouts, leaving the worker lifecycle to whoever attached it.
	Debug bool `yaml:"debug"`

	GracePeriod Duration `yaml:"grace_period"`
	ReadTimeout Duration `yaml:"read_timeout"`

	// BroadcastNames lists the broadcast variables, in distribution order.
	BroadcastNames []string `yaml:"broadcast_names"`
}

// LoadConfig reads a YAML bridge configuration. Unknown fields are an
// error to catch typos in operational configs.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading bridge config")
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing bridge config %q", path)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.TaskName == "" {
		c.TaskName = "unnamed task"
	}
	if c.Python2Binary == "" {
		c.Python2Binary = "python2"
	}
	if c.Python3Binary == "" {
		c.Python3Binary = "python3"
	}
	if c.TmpDir == "" {
		c.TmpDir = os.TempDir()
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = Duration(DefaultGracePeriod)
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = Duration(DefaultReadTimeout)
	}
	return c
}

func (c Config) validate() error {
	if !c.Debug && c.ScriptPath == "" {
		return errors.New("config: script_path is required outside of debug mode")
	}
	switch c.WorkerVersion {
	case 0, 2, 3:
	default:
		return errors.Errorf("config: unsupported worker_version %d", c.WorkerVersion)
	}
	return nil
}

func (c Config) workerBinary() string {
	if c.WorkerVersion == 2 {
		return c.Python2Binary
	}
	return c.Python3Binary
}

func (c Config) gracePeriod() time.Duration {
	return time.Duration(c.GracePeriod)
}

func (c Config) readTimeout() time.Duration {
	return time.Duration(c.ReadTimeout)
}
