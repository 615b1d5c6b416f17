// Package util holds small helpers shared by the bot's components: group
// code generation, date and clock parsing, and environment lookups.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean switch such as DEBUG or
// KEIKOBABOT_STRICT_SESSION from the environment. Unset variables yield
// defaultValue; recognized spellings are true/1/yes/on and false/0/no/off,
// case-insensitive. Anything else logs a warning and yields defaultValue.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: unrecognized boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}
