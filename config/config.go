// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads storefront settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = "8080"
	DefaultContentAPIURL   = "http://localhost:1337/graphql"
	DefaultContentAssetURL = "http://localhost:1337"
	DefaultRevalidate      = 10 * time.Second
	DefaultContentTimeout  = 10 * time.Second
)

// Config holds every tunable of the storefront process.
type Config struct {
	Port       string `yaml:"port"`
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`
	LogLevel   string `yaml:"log_level"`

	ContentAPIURL   string        `yaml:"content_api_url"`
	ContentAssetURL string        `yaml:"content_asset_url"`
	ContentTimeout  time.Duration `yaml:"-"`

	Revalidate time.Duration `yaml:"-"`
	Prerender  bool          `yaml:"prerender"`

	EnableTracing  bool `yaml:"enable_tracing"`
	EnableProfiler bool `yaml:"enable_profiler"`
}

func defaults() Config {
	return Config{
		Port:            DefaultPort,
		LogLevel:        "debug",
		ContentAPIURL:   DefaultContentAPIURL,
		ContentAssetURL: DefaultContentAssetURL,
		ContentTimeout:  DefaultContentTimeout,
		Revalidate:      DefaultRevalidate,
		Prerender:       true,
	}
}

// Load builds a Config from defaults, then the file named by
// STOREFRONT_CONFIG (if set), then individual environment variables.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if path := getenv("STOREFRONT_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		file := fileConfig{Config: cfg}
		if err := yaml.Unmarshal(b, &file); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %s", path)
		}
		cfg = file.Config
		if file.ContentTimeout != nil {
			cfg.ContentTimeout = time.Duration(*file.ContentTimeout)
		}
		if file.Revalidate != nil {
			cfg.Revalidate = time.Duration(*file.Revalidate)
		}
	}

	env := envReader{getenv: getenv}
	env.str(&cfg.Port, "PORT")
	env.str(&cfg.ListenAddr, "LISTEN_ADDR")
	env.str(&cfg.BaseURL, "BASE_URL")
	env.str(&cfg.LogLevel, "LOG_LEVEL")
	env.str(&cfg.ContentAPIURL, "CONTENT_API_URL")
	env.str(&cfg.ContentAssetURL, "CONTENT_ASSET_URL")
	env.duration(&cfg.ContentTimeout, "CONTENT_TIMEOUT")
	env.seconds(&cfg.Revalidate, "REVALIDATE_SECONDS")
	env.flag(&cfg.Prerender, "PRERENDER")
	env.flag(&cfg.EnableTracing, "ENABLE_TRACING")
	env.flag(&cfg.EnableProfiler, "ENABLE_PROFILER")
	if env.err != nil {
		return Config{}, env.err
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.ContentAssetURL = strings.TrimSuffix(cfg.ContentAssetURL, "/")
	if cfg.Revalidate <= 0 {
		return Config{}, errors.Errorf("revalidate interval must be positive, got %v", cfg.Revalidate)
	}
	return cfg, nil
}

// fileConfig is the layout of the YAML file.
type fileConfig struct {
	Config `yaml:",inline"`

	ContentTimeout *duration `yaml:"content_timeout"`
	Revalidate     *duration `yaml:"revalidate"`
}

// duration is a YAML duration written either as a Go duration ("10s") or as
// a bare number of seconds (10), the unit REVALIDATE_SECONDS uses.
type duration time.Duration

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: duration must be a scalar", n.Line)
	}
	if secs, err := strconv.Atoi(n.Value); err == nil {
		*d = duration(time.Duration(secs) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", n.Line)
	}
	*d = duration(v)
	return nil
}

// envReader overlays set environment variables onto config fields and keeps
// the first parse failure.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) str(target *string, key string) {
	if v := r.getenv(key); v != "" {
		*target = v
	}
}

func (r *envReader) flag(target *bool, key string) {
	v := r.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(errors.Wrapf(err, "environment variable %q", key))
		return
	}
	*target = b
}

func (r *envReader) duration(target *time.Duration, key string) {
	v := r.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(errors.Wrapf(err, "environment variable %q", key))
		return
	}
	*target = d
}

func (r *envReader) seconds(target *time.Duration, key string) {
	v := r.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(errors.Wrapf(err, "environment variable %q", key))
		return
	}
	*target = time.Duration(n) * time.Second
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
