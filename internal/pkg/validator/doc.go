// Package validator provides a small validation abstraction for request and
// configuration structs.
//
// Business code depends on the Validator interface; the go-playground v10
// implementation lives in this package and reports failures as a map keyed
// by the field's JSON name, so the map can be returned to HTTP callers as-is.
package validator
