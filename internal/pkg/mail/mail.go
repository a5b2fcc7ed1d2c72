package mail

import (
	"context"
	"io"
)

// Message represents an email payload.
type Message struct {
	// From is the sender mailbox; falls back to the configured default.
	From string
	// FromName is an optional display name shown with From.
	FromName string
	// ReplyTo is an optional address used for the Reply-To header.
	ReplyTo string
	// To lists primary recipients.
	To []string
	// Cc lists carbon copy recipients.
	Cc []string
	// Bcc lists blind carbon copy recipients; never written as a header.
	Bcc []string
	// Subject is the email subject line.
	Subject string
	// TextBody is the plain-text body.
	TextBody string
	// HTMLBody is the HTML body. When both bodies are set the message is
	// sent as multipart/alternative.
	HTMLBody string
}

// Receipt describes an accepted delivery.
type Receipt struct {
	// MessageID is the Message-ID header assigned to the message.
	MessageID string
	// Response is the final reply line of the relay, e.g. "250 2.0.0 Ok: queued".
	Response string
}

// Mail abstracts an email relay.
type Mail interface {
	io.Closer
	// Send dispatches msg once and reports what the relay accepted.
	Send(ctx context.Context, msg Message) (Receipt, error)
	// Verify checks that the relay is reachable and accepts the credentials.
	Verify(ctx context.Context) error
}
