package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/yuichietsu/retroarch-sync/internal/suggest"
)

// knownKeys lists the valid keys per table; "" is the top level.
var knownKeys = map[string][]string{
	"":        {"catalog", "journal", "locks", "log_format", "log_level", "remote", "tools", "watch"},
	"remote":  {"adb_path", "fatal_substring", "retry_count", "retry_interval", "serial"},
	"locks":   {"favorites_paths", "retention", "states_paths"},
	"tools":   {"hash_workers", "ignore_marker", "multipart_pattern", "regions", "scratch_dir"},
	"watch":   {"debounce"},
	"catalog": {"data", "destination", "local", "name", "source", "targets"},
}

func init() {
	for _, keys := range knownKeys {
		sort.Strings(keys)
	}
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		table, field := "", key[0]
		if len(key) > 1 {
			if _, ok := knownKeys[key[0]]; ok {
				table, field = key[0], key[1]
			}
		}

		if s := suggest.Closest(field, knownKeys[table]); s != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q: did you mean %q?", key.String(), s))
			continue
		}

		errs = append(errs, fmt.Errorf("unknown config key %q", key.String()))
	}

	return errors.Join(errs...)
}
