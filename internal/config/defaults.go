package config

import "github.com/yuichietsu/retroarch-sync/internal/variant"

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultADBPath          = "adb"
	defaultRetryCount       = 5
	defaultRetryInterval    = "60s"
	defaultFatalSubstring   = "No such file or directory"
	defaultRetention        = "14d"
	defaultHashWorkers      = 1
	defaultIgnoreMarker     = ".rsignore"
	defaultMultipartPattern = `^(.+?)\(Dis[kc] *(\d+|[A-Z])( of \d+)?\)`
	defaultDebounce         = "30s"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the base TOML is decoded onto and the fallback when no file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
		Journal:   true,
		Remote: RemoteConfig{
			ADBPath:        defaultADBPath,
			RetryCount:     defaultRetryCount,
			RetryInterval:  defaultRetryInterval,
			FatalSubstring: defaultFatalSubstring,
		},
		Locks: LocksConfig{
			Retention: defaultRetention,
		},
		Tools: ToolsConfig{
			HashWorkers:      defaultHashWorkers,
			IgnoreMarker:     defaultIgnoreMarker,
			Regions:          append([]string(nil), variant.Regions...),
			MultipartPattern: defaultMultipartPattern,
		},
		Watch: WatchConfig{
			Debounce: defaultDebounce,
		},
	}
}
