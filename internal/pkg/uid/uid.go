// Package uid generates identifiers used for request correlation and
// outbound message ids.
package uid

// StringID generates opaque string identifiers.
type StringID interface {
	Generate() string
}
