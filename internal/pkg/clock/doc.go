// Package clock provides a tiny time abstraction.
//
// Handlers that expose timestamps (for example the health endpoint) depend on
// Clocker instead of calling time.Now() directly, so tests can pin the time
// with clock.Func.
package clock
