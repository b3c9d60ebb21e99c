// Package config provides configuration management for the gates controller.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.
type Config struct {
	// Installation layout (YAML)
	LayoutFile  string
	WatchLayout bool

	// Sensor configuration
	SensorPort  string // serial device, or "-" for stdin
	SensorBaud  int
	SensorRetry time.Duration // give up opening the port after this long

	// DMX configuration
	DMXOutput       string // artnet, enttec or none
	DMXIdleRate     int    // Hz keep-alive while nothing changes
	EnttecPort      string
	EnttecRetry     time.Duration // give up opening the widget after this long
	ArtNetPort      int
	ArtNetBroadcast string
	ArtNetUniverse  int

	// Audio configuration
	AudioBackend string // exec, beep or none
	AudioPlayer  string // external player command for the exec backend
	SoundDir     string

	// Status server ("" disables it)
	StatusAddr string
	CORSOrigin string

	LogLevel   string
	RandomSeed int64 // 0 seeds from the clock
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Layout
		LayoutFile:  getEnv("LAYOUT_FILE", "layout.yaml"),
		WatchLayout: getEnvBool("WATCH_LAYOUT", true),

		// Sensors
		SensorPort:  getEnv("SENSOR_PORT", "/dev/ttyACM0"),
		SensorBaud:  getEnvInt("SENSOR_BAUD", 9600),
		SensorRetry: time.Duration(getEnvInt("SENSOR_RETRY", 30000)) * time.Millisecond,

		// DMX
		DMXOutput:       getEnv("DMX_OUTPUT", "enttec"),
		DMXIdleRate:     getEnvInt("DMX_IDLE_RATE", 1),
		EnttecPort:      getEnv("ENTTEC_PORT", "/dev/ttyUSB0"),
		EnttecRetry:     time.Duration(getEnvInt("DMX_RETRY", 30000)) * time.Millisecond,
		ArtNetPort:      getEnvInt("ARTNET_PORT", 6454),
		ArtNetBroadcast: getEnv("ARTNET_BROADCAST", "255.255.255.255"),
		ArtNetUniverse:  getEnvInt("ARTNET_UNIVERSE", 0),

		// Audio
		AudioBackend: getEnv("AUDIO_BACKEND", "exec"),
		AudioPlayer:  getEnv("AUDIO_PLAYER", "aplay"),
		SoundDir:     getEnv("SOUND_DIR", "sons"),

		// Status
		StatusAddr: getEnv("STATUS_ADDR", ":4000"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		RandomSeed: int64(getEnvInt("RANDOM_SEED", 0)),
	}
}

// UsesStdin returns true if sensor events are read from standard input.
func (c *Config) UsesStdin() bool {
	return c.SensorPort == "-"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
