// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for retroarch-sync. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). Per-directory catalog data (dependency maps, clone lists, titles)
// lives in separate YAML files referenced from the config.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Journal   bool   `toml:"journal"`

	Remote   RemoteConfig `toml:"remote"`
	Locks    LocksConfig  `toml:"locks"`
	Tools    ToolsConfig  `toml:"tools"`
	Watch    WatchConfig  `toml:"watch"`
	Catalogs []Catalog    `toml:"catalog"`
}

// RemoteConfig describes the adb channel to the device.
type RemoteConfig struct {
	Serial         string `toml:"serial"`
	ADBPath        string `toml:"adb_path"`
	RetryCount     int    `toml:"retry_count"`
	RetryInterval  string `toml:"retry_interval"`
	FatalSubstring string `toml:"fatal_substring"`
}

// LocksConfig names the device files that protect entries from deletion.
type LocksConfig struct {
	StatesPaths    []string `toml:"states_paths"`
	FavoritesPaths []string `toml:"favorites_paths"`
	Retention      string   `toml:"retention"`
}

// ToolsConfig controls local processing: scratch space, hashing, and the
// vocabularies used to recognise variants and multi-disc sets.
type ToolsConfig struct {
	ScratchDir       string   `toml:"scratch_dir"`
	HashWorkers      int      `toml:"hash_workers"`
	IgnoreMarker     string   `toml:"ignore_marker"`
	Regions          []string `toml:"regions"`
	MultipartPattern string   `toml:"multipart_pattern"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	Debounce string `toml:"debounce"`
}

// Catalog is one source tree mirrored to one destination tree. Targets maps
// a source directory name to its policy string; Data maps a directory name
// to a YAML catalog data file.
type Catalog struct {
	Name        string            `toml:"name"`
	Source      string            `toml:"source"`
	Destination string            `toml:"destination"`
	Local       bool              `toml:"local"`
	Targets     map[string]string `toml:"targets"`
	Data        map[string]string `toml:"data"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Serial     *string // --serial flag
}

// FindCatalog returns the catalog named name.
func (c *Config) FindCatalog(name string) (*Catalog, bool) {
	for i := range c.Catalogs {
		if c.Catalogs[i].Name == name {
			return &c.Catalogs[i], true
		}
	}

	return nil, false
}
