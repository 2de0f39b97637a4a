// Package config provides environment-variable parsing helpers and an
// optional YAML fixture loader for local/dev runs, generalizing
// infrastructure/config/loader.go's env helpers from Marble-secret-aware
// lookups to plain os.Getenv, since this module has no secret-injection
// sidecar to consult.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv retrieves an environment variable with a fallback default.
func GetEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable. Accepts "true",
// "1", "yes", "y" (case-insensitive) as true; anything else as false.
func GetEnvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

// GetEnvInt retrieves an integer environment variable, falling back to
// defaultValue when unset or unparsable.
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseEnvDuration parses a duration from the given environment variable.
// Returns ok=false when unset or unparsable so callers can apply their
// own default rather than silently getting zero.
func ParseEnvDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// SplitAndTrimCSV splits a comma-separated environment value, trimming
// whitespace and dropping empty entries.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseByteSize parses sizes like "512MB", "1GiB", "10k" into bytes
// (binary multiples: "MB" and "MiB" both mean 1<<20).
func ParseByteSize(raw string) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	suffixes := []struct {
		suffix string
		factor int64
	}{
		{"gib", 1 << 30}, {"gb", 1 << 30}, {"g", 1 << 30},
		{"mib", 1 << 20}, {"mb", 1 << 20}, {"m", 1 << 20},
		{"kib", 1 << 10}, {"kb", 1 << 10}, {"k", 1 << 10},
		{"b", 1},
	}
	for _, s := range suffixes {
		if !strings.HasSuffix(v, s.suffix) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(v, s.suffix))
		if num == "" {
			return 0, fmt.Errorf("missing size value in %q", raw)
		}
		parsed, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, err
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("size must be positive")
		}
		return parsed * s.factor, nil
	}
	return 0, fmt.Errorf("unrecognized size suffix in %q", raw)
}
