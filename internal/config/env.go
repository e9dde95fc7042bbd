package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "RETROARCH_SYNC_CONFIG"
	EnvSerial = "RETROARCH_SYNC_SERIAL"
	EnvADB    = "RETROARCH_SYNC_ADB"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // RETROARCH_SYNC_CONFIG: override config file path
	Serial     string // RETROARCH_SYNC_SERIAL: device serial or host:port
	ADBPath    string // RETROARCH_SYNC_ADB: adb executable
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Serial:     os.Getenv(EnvSerial),
		ADBPath:    os.Getenv(EnvADB),
	}
}
