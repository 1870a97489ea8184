/*
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

package cprep

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/fwessels/cprep/internal/preprocessor"
)

// Color modes for diagnostics.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config drives a preprocessing session. It can be read from YAML; command
// line flags are layered on top.
type Config struct {
	// IncludeDirs are searched for both <...> and "..." includes.
	IncludeDirs []string `yaml:"include_dirs"`
	// QuoteDirs are searched for "..." includes only, before IncludeDirs.
	QuoteDirs []string `yaml:"quote_dirs"`
	// Defines holds NAME or NAME=VALUE entries, installed in order.
	Defines []string `yaml:"defines"`

	MaxExpansionDepth int    `yaml:"max_expansion_depth"`
	Color             string `yaml:"color"`
	LogLevel          string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		MaxExpansionDepth: preprocessor.DefaultMaxExpansionDepth,
		Color:             ColorAuto,
		LogLevel:          logrus.WarnLevel.String(),
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file keep
// their defaults; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decoding yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return errors.Errorf("invalid color mode %q, expected auto, always or never", c.Color)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	if c.MaxExpansionDepth < 0 {
		return errors.Errorf("max_expansion_depth must not be negative, got %d", c.MaxExpansionDepth)
	}
	return nil
}
