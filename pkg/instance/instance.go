// Package instance names the running process for logs and lock ownership.
package instance

import (
	"os"

	"github.com/angelmondragon/freightmarket-backend/pkg/env"
)

// GetID returns the first non-empty of FREIGHT_INSTANCE_ID, DYNO and the
// hostname, falling back to kind + "-0".
func GetID(kind string) string {
	if id := env.First("", "FREIGHT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if kind == "" {
		kind = "worker"
	}
	return kind + "-0"
}
