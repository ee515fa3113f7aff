// Package env reads the few settings needed before config is loaded.
package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys, or fallback.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}

// LogFormat is "console" or "json". FREIGHT_LOG_FORMAT wins over LOG_FORMAT.
func LogFormat() string {
	if strings.EqualFold(First("json", "FREIGHT_LOG_FORMAT", "LOG_FORMAT"), "console") {
		return "console"
	}
	return "json"
}
