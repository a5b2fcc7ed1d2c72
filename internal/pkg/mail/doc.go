// Package mail defines the contract for relaying email messages and its SMTP
// implementation.
//
// Callers build a provider-agnostic Message and hand it to a Mail. The SMTP
// relay composes the MIME document with gomail, speaks the protocol with
// net/smtp and reports the Message-ID it assigned together with the server's
// final response line, so a submission can be traced in the provider's logs.
//
// A Mail performs no retries and no deduplication: every Send call is a new
// delivery attempt.
package mail
