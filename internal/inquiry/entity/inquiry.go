package entity

import "strings"

// Placeholders used when optional inquiry fields are absent.
const (
	DefaultPhone          = "Not provided"
	DefaultService        = "Not mentioned"
	DefaultSubjectService = "General"
)

// Inquiry is a single contact-form submission. It lives only for the
// duration of one request and is never stored.
type Inquiry struct {
	Name    string
	Email   string
	Phone   string
	Service string
	Message string
}

// PhoneOrDefault returns Phone or DefaultPhone when it is empty.
func (i Inquiry) PhoneOrDefault() string {
	if i.Phone == "" {
		return DefaultPhone
	}
	return i.Phone
}

// ServiceOrDefault returns Service or DefaultService when it is empty.
func (i Inquiry) ServiceOrDefault() string {
	if i.Service == "" {
		return DefaultService
	}
	return i.Service
}

// SubjectService returns the service label used in the subject line.
func (i Inquiry) SubjectService(fallback string) string {
	if i.Service != "" {
		return i.Service
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return DefaultSubjectService
}
