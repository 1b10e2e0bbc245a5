// Package corpus replays a directory of profile fixtures against the
// decoders. A manifest pins the expected classification of every
// fixture; a regression is a fixture that stopped matching it.
package corpus

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Classification is what the manifest expects of one fixture.
type Classification string

const (
	// ExpectInstrumented fixtures decode as instrumented profiles, in
	// any container.
	ExpectInstrumented Classification = "instrumented"
	// ExpectSample fixtures decode as sampling profiles.
	ExpectSample Classification = "sample"
	// ExpectBad fixtures must fail to decode.
	ExpectBad Classification = "known-bad"
)

func (c Classification) valid() bool {
	switch c {
	case ExpectInstrumented, ExpectSample, ExpectBad:
		return true
	}
	return false
}

// Entry pins one fixture, its path relative to the corpus directory.
type Entry struct {
	Path   string         `yaml:"path"`
	Expect Classification `yaml:"expect"`
}

// Manifest lists the corpus fixtures with their expected outcomes.
type Manifest struct {
	Fixtures []Entry `yaml:"fixtures"`
}

var (
	ErrNoPath        = ValidationError{errors.New("fixture has no path")}
	ErrBadExpect     = ValidationError{errors.New("unknown expectation")}
	ErrDuplicatePath = ValidationError{errors.New("duplicate path")}
)

// ParseManifest parses and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	return ParseManifest(data)
}

// Validate checks every fixture entry and reports all problems at once.
func (m *Manifest) Validate() error {
	var err error
	seen := make(map[string]struct{}, len(m.Fixtures))
	for i, e := range m.Fixtures {
		if e.Path == "" {
			err = multierror.Append(err, fmt.Errorf("fixture %d: %w", i, ErrNoPath))
		} else if _, ok := seen[e.Path]; ok {
			err = multierror.Append(err, fmt.Errorf("fixture %d: %w: %s", i, ErrDuplicatePath, e.Path))
		}
		seen[e.Path] = struct{}{}
		if !e.Expect.valid() {
			err = multierror.Append(err, fmt.Errorf("fixture %d (%s): %w: %q", i, e.Path, ErrBadExpect, e.Expect))
		}
	}
	return err
}
