package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. It backs the "config show" command.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)
	ew.printf("log_level  = %q\n", cfg.LogLevel)
	ew.printf("log_format = %q\n", cfg.LogFormat)
	ew.printf("journal    = %t\n\n", cfg.Journal)

	renderRemoteSection(ew, &cfg.Remote)
	renderLocksSection(ew, &cfg.Locks)
	renderToolsSection(ew, &cfg.Tools)

	ew.printf("[watch]\n")
	ew.printf("  debounce = %q\n\n", cfg.Watch.Debounce)

	for i := range cfg.Catalogs {
		renderCatalogSection(ew, &cfg.Catalogs[i])
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderRemoteSection(ew *errWriter, r *RemoteConfig) {
	ew.printf("[remote]\n")
	ew.printf("  serial          = %q\n", r.Serial)
	ew.printf("  adb_path        = %q\n", r.ADBPath)
	ew.printf("  retry_count     = %d\n", r.RetryCount)
	ew.printf("  retry_interval  = %q\n", r.RetryInterval)
	ew.printf("  fatal_substring = %q\n", r.FatalSubstring)
	ew.printf("\n")
}

func renderLocksSection(ew *errWriter, l *LocksConfig) {
	ew.printf("[locks]\n")
	ew.printf("  retention       = %q\n", l.Retention)

	if len(l.StatesPaths) > 0 {
		ew.printf("  states_paths    = [%s]\n", joinQuoted(l.StatesPaths))
	}

	if len(l.FavoritesPaths) > 0 {
		ew.printf("  favorites_paths = [%s]\n", joinQuoted(l.FavoritesPaths))
	}

	ew.printf("\n")
}

func renderToolsSection(ew *errWriter, t *ToolsConfig) {
	ew.printf("[tools]\n")
	ew.printf("  scratch_dir       = %q\n", t.ScratchRoot())
	ew.printf("  hash_workers      = %d\n", t.HashWorkers)
	ew.printf("  ignore_marker     = %q\n", t.IgnoreMarker)
	ew.printf("  regions           = [%s]\n", joinQuoted(t.Regions))
	ew.printf("  multipart_pattern = %q\n", t.MultipartPattern)
	ew.printf("\n")
}

func renderCatalogSection(ew *errWriter, c *Catalog) {
	ew.printf("[[catalog]]\n")
	ew.printf("  name        = %q\n", c.Name)
	ew.printf("  source      = %q\n", c.Source)
	ew.printf("  destination = %q\n", c.Destination)

	if c.Local {
		ew.printf("  local       = true\n")
	}

	if len(c.Targets) > 0 {
		ew.printf("  [catalog.targets]\n")

		for _, dir := range sortedKeys(c.Targets) {
			ew.printf("  %q = %q\n", dir, c.Targets[dir])
		}
	}

	if len(c.Data) > 0 {
		ew.printf("  [catalog.data]\n")

		for _, dir := range sortedKeys(c.Data) {
			ew.printf("  %q = %q\n", dir, c.Data[dir])
		}
	}

	ew.printf("\n")
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
