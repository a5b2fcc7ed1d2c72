package validator

// Validator validates structs annotated with `validate` tags.
type Validator interface {
	// Validate returns nil when data satisfies its rules, or an error
	// describing every failed field.
	Validate(data any) error
}
