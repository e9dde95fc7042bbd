package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sort"

	"github.com/yuichietsu/retroarch-sync/internal/policy"
)

// Validation range constants.
const (
	minRetryCount  = 1
	maxRetryCount  = 100
	minHashWorkers = 1
	maxHashWorkers = 64
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found.
// Policy strings are not checked here: a directory with an unusable policy
// is skipped at run time. Check covers them.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogging(cfg)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateLocks(&cfg.Locks)...)
	errs = append(errs, validateTools(&cfg.Tools)...)

	if _, err := ParseDuration(cfg.Watch.Debounce); err != nil {
		errs = append(errs, fmt.Errorf("watch.debounce: %w", err))
	}

	errs = append(errs, validateCatalogs(cfg.Catalogs)...)

	return errors.Join(errs...)
}

func validateLogging(cfg *Config) []error {
	var errs []error

	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %v, got %q", validLogLevels, cfg.LogLevel))
	}

	if !slices.Contains(validLogFormats, cfg.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %v, got %q", validLogFormats, cfg.LogFormat))
	}

	return errs
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if r.ADBPath == "" {
		errs = append(errs, errors.New("remote.adb_path: must not be empty"))
	}

	if r.RetryCount < minRetryCount || r.RetryCount > maxRetryCount {
		errs = append(errs, fmt.Errorf("remote.retry_count: must be between %d and %d, got %d",
			minRetryCount, maxRetryCount, r.RetryCount))
	}

	if _, err := ParseDuration(r.RetryInterval); err != nil {
		errs = append(errs, fmt.Errorf("remote.retry_interval: %w", err))
	}

	return errs
}

func validateLocks(l *LocksConfig) []error {
	var errs []error

	d, err := ParseDuration(l.Retention)
	if err != nil {
		errs = append(errs, fmt.Errorf("locks.retention: %w", err))
	} else if d == 0 {
		errs = append(errs, errors.New("locks.retention: must be positive"))
	}

	for _, p := range append(append([]string(nil), l.StatesPaths...), l.FavoritesPaths...) {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("locks: path %q must be absolute", p))
		}
	}

	return errs
}

func validateTools(t *ToolsConfig) []error {
	var errs []error

	if t.HashWorkers < minHashWorkers || t.HashWorkers > maxHashWorkers {
		errs = append(errs, fmt.Errorf("tools.hash_workers: must be between %d and %d, got %d",
			minHashWorkers, maxHashWorkers, t.HashWorkers))
	}

	re, err := regexp.Compile(t.MultipartPattern)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("tools.multipart_pattern: %w", err))
	case re.NumSubexp() < 1:
		errs = append(errs, errors.New("tools.multipart_pattern: needs a capture group for the set name"))
	}

	if t.ScratchDir != "" && !filepath.IsAbs(t.ScratchDir) {
		errs = append(errs, fmt.Errorf("tools.scratch_dir: must be absolute, got %q", t.ScratchDir))
	}

	return errs
}

func validateCatalogs(cats []Catalog) []error {
	var errs []error

	seen := make(map[string]bool, len(cats))

	for i := range cats {
		c := &cats[i]

		if c.Name == "" {
			errs = append(errs, fmt.Errorf("catalog #%d: name must not be empty", i+1))
		} else if seen[c.Name] {
			errs = append(errs, fmt.Errorf("catalog %q: duplicate name", c.Name))
		}

		seen[c.Name] = true

		if !filepath.IsAbs(c.Source) {
			errs = append(errs, fmt.Errorf("catalog %q: source must be absolute, got %q", c.Name, c.Source))
		}

		if !filepath.IsAbs(c.Destination) || filepath.Clean(c.Destination) == "/" {
			errs = append(errs, fmt.Errorf("catalog %q: destination must be an absolute path below /, got %q",
				c.Name, c.Destination))
		}

		for dir := range c.Data {
			if _, ok := c.Targets[dir]; !ok {
				errs = append(errs, fmt.Errorf("catalog %q: data for %q has no target", c.Name, dir))
			}
		}
	}

	return errs
}

// Check runs the deeper checks behind "config check": every policy string
// must parse and every catalog data file must load.
func Check(cfg *Config) error {
	var errs []error

	for i := range cfg.Catalogs {
		c := &cfg.Catalogs[i]

		for _, dir := range sortedKeys(c.Targets) {
			if _, err := policy.Parse(c.Targets[dir]); err != nil {
				errs = append(errs, fmt.Errorf("catalog %q target %q: %w", c.Name, dir, err))
			}
		}

		for _, dir := range sortedKeys(c.Data) {
			if _, err := LoadData(c.Data[dir]); err != nil {
				errs = append(errs, fmt.Errorf("catalog %q data %q: %w", c.Name, dir, err))
			}
		}
	}

	return errors.Join(errs...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
