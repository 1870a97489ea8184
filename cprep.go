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
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fwessels/cprep/internal/preprocessor"
)

// New builds a session that reads includes from disk along the configured
// search paths, with the configured macros predefined. Log output goes to
// stderr.
func New(cfg Config) (*preprocessor.Preprocessor, error) {
	return NewWithLog(cfg, os.Stderr)
}

func NewWithLog(cfg Config, logOut io.Writer) (*preprocessor.Preprocessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger := logrus.New()
	logger.SetOutput(logOut)
	logger.SetLevel(level)

	p := preprocessor.NewPreprocessor()
	p.Log = logrus.NewEntry(logger)

	r := preprocessor.NewSearchPathResolver(cfg.QuoteDirs, cfg.IncludeDirs)
	r.Log = p.Log
	p.Resolver = r
	p.Loader = preprocessor.DiskLoader{}
	if cfg.MaxExpansionDepth > 0 {
		p.MaxExpansionDepth = cfg.MaxExpansionDepth
	}

	for _, d := range cfg.Defines {
		if err := p.DefineFromFlag(d); err != nil {
			return nil, errors.Wrapf(err, "predefining %s", d)
		}
	}
	return p, nil
}

// File preprocesses the file at path. Quoted includes are looked up next to
// the file that contains them first.
func File(cfg Config, path string) (*preprocessor.Preprocessor, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "resolving %s", path)
	}

	p, err := New(cfg)
	if err != nil {
		return nil, "", err
	}
	f, err := p.Loader.LoadFile(abs)
	if err != nil {
		return p, "", err
	}
	if err := p.PreprocessFile(f); err != nil {
		return p, "", err
	}
	return p, p.Text(), nil
}

// Stats summarizes a finished session.
type Stats struct {
	Files       int
	Tokens      int
	InputBytes  int
	OutputBytes int
}

func SessionStats(p *preprocessor.Preprocessor, output string) Stats {
	st := Stats{Tokens: p.TokenCount(), OutputBytes: len(output)}
	for _, f := range p.Files() {
		st.Files++
		st.InputBytes += len(f.Original)
	}
	return st
}
