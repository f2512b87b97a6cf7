// Package env reads process environment variables with typed defaults.
package env

import (
	"os"
	"strconv"
)

// String returns the environment variable named by key, or def if unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the environment variable named by key parsed as an int, or def
// if unset, empty, or unparsable.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the environment variable named by key parsed as a bool, or def
// if unset, empty, or unparsable.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
