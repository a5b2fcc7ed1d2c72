package config

import (
	"io"
	"time"
)

// Config defines the read-only view of runtime configuration.
//
// Implementations resolve a dotted key (for example "smtp.host") and convert
// the value to the requested type, returning the zero value when the key is
// unset or cannot be converted.
type Config interface {
	io.Closer

	// GetBool retrieves the value for key as a bool.
	GetBool(key string) bool

	// GetInt retrieves the value for key as an int.
	GetInt(key string) int

	// GetFloat64 retrieves the value for key as a float64.
	GetFloat64(key string) float64

	// GetString retrieves the value for key as a string.
	GetString(key string) string

	// GetSecond retrieves an integer value for key interpreted as seconds.
	GetSecond(key string) time.Duration

	// GetArray retrieves the value for key as a slice of strings.
	// The value is stored with format <element1>,<element2>,...
	GetArray(key string) []string
}
