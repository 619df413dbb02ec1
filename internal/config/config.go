/*
 * Copyright (c) mpibind-go contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config is the CLI's YAML-loaded configuration object, in the
// teacher's api/config/v1.Config idiom: a plain struct unmarshaled with
// sigs.k8s.io/yaml, with a package-level Version constant and a
// Load/parseFrom pair rather than exported mutable globals. Watch adapts
// the teacher's cmd/nvidia-device-plugin/main.go fsnotify watch loop
// (there, watching the kubelet socket directory for a restart signal) to
// watching a single file; the CLI's --watch-config uses it on its config
// file and exits when that file changes.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/yaml"

	"github.com/hpctools/mpibind-go/internal/envproj"
)

// Version identifies the shape of the Config struct on disk.
const Version = "v1"

// Config holds the CLI's default Handle settings (spec.md §6.2) plus the
// ambient settings the engine itself has no opinion on (topology file
// path, metrics address).
type Config struct {
	Version string `json:"version" yaml:"version"`

	NTasks        int    `json:"ntasks"        yaml:"ntasks"`
	NThreads      int    `json:"nthreads"      yaml:"nthreads"`
	Greedy        bool   `json:"greedy"        yaml:"greedy"`
	GPUOptim      bool   `json:"gpuOptim"      yaml:"gpuOptim"`
	SMT           int    `json:"smt"           yaml:"smt"`
	RestrictIDs   string `json:"restrictIds"   yaml:"restrictIds"`
	RestrictKind  string `json:"restrictKind"  yaml:"restrictKind"` // "cpu" or "mem"
	DeviceIDSpace string `json:"deviceIdSpace" yaml:"deviceIdSpace"`

	TopologyFile string `json:"topologyFile" yaml:"topologyFile"`
	MetricsAddr  string `json:"metricsAddr"  yaml:"metricsAddr"`
}

// Default returns the CLI's baked-in defaults, mirroring Handle's own
// spec.md §4.7 defaults.
func Default() *Config {
	return &Config{
		Version:       Version,
		NTasks:        1,
		Greedy:        true,
		GPUOptim:      true,
		RestrictKind:  "cpu",
		DeviceIDSpace: "visdevs",
	}
}

// Load reads and parses a YAML (or JSON, which is valid YAML) config
// file, falling back to Default if path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %q: %w", path, err)
	}
	defer f.Close()
	return parseFrom(f)
}

func parseFrom(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read error: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse error: %w", err)
	}
	return cfg, nil
}

// DeviceIDSpaceValue parses Config.DeviceIDSpace into an envproj.DeviceIDSpace,
// defaulting to envproj.DeviceIDVisdevs for an unrecognized value.
func (c *Config) DeviceIDSpaceValue() envproj.DeviceIDSpace {
	switch c.DeviceIDSpace {
	case "index":
		return envproj.DeviceIDIndex
	case "busid":
		return envproj.DeviceIDBusID
	case "name":
		return envproj.DeviceIDName
	case "uuid":
		return envproj.DeviceIDUUID
	default:
		return envproj.DeviceIDVisdevs
	}
}

// Watch watches path's parent directory and invokes onChange whenever
// path itself is written or recreated, until stop is closed. Mirrors the
// teacher's main.go fsnotify.Create-on-kubelet-socket pattern, retargeted
// to fsnotify.Write|Create on one file.
func Watch(path string, stop <-chan struct{}, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating fs watcher: %w", err)
	}

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watching %q: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == path && (ev.Op&fsnotify.Write == fsnotify.Write || ev.Op&fsnotify.Create == fsnotify.Create) {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
