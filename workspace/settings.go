package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sifive/wit/auth"
)

// Settings is an optional, YAML-configured set of operator defaults:
// auth material and extra repo_paths search directories that would
// otherwise have to be repeated on every invocation as environment
// variables or flags. It has no required fields; a missing file is
// not an error.
type Settings struct {
	Auth      auth.Config `yaml:"auth"`
	RepoPaths []string    `yaml:"repo_paths"`
}

// LoadSettings reads and validates the YAML settings file at path. A
// missing file yields a zero-value Settings and no error, matching
// the teacher's "defaults if not set" convention for optional config.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("unable to read settings %q: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("unable to parse settings %q: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %q: %w", path, err)
	}
	return s, nil
}

func (s *Settings) validate() error {
	var errs []error
	for _, p := range s.RepoPaths {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("repo_paths entry %q must be absolute", p))
		}
	}
	return errors.Join(errs...)
}

// ApplyTo merges s into cfg: if cfg.Auth is entirely zero it is
// replaced by s.Auth, otherwise cfg.Auth is kept as is (no per-field
// merge); s.RepoPaths is appended after cfg.RepoPaths.
func (s Settings) ApplyTo(cfg Config) Config {
	if cfg.Auth == (auth.Config{}) {
		cfg.Auth = s.Auth
	}
	cfg.RepoPaths = append(append([]string{}, cfg.RepoPaths...), s.RepoPaths...)
	return cfg
}
