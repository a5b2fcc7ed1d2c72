package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shandysiswandi/contactrelay/internal/pkg/uid"
	"gopkg.in/gomail.v2"
)

var (
	// ErrSMTPHostPortRequired is returned when Host/Port are missing.
	ErrSMTPHostPortRequired = errors.New("smtp host and port are required")
	// ErrSMTPNoRecipients is returned when To/Cc/Bcc are all empty.
	ErrSMTPNoRecipients = errors.New("no recipients provided")
	// ErrSMTPNoSender is returned when both Message.From and the configured default From are empty.
	ErrSMTPNoSender = errors.New("no sender provided")
	// ErrSMTPInvalidTLSMode is returned for an unknown transport security mode.
	ErrSMTPInvalidTLSMode = errors.New("invalid smtp tls mode")
	// ErrSMTPStartTLSUnsupported is returned when starttls is required but not offered.
	ErrSMTPStartTLSUnsupported = errors.New("smtp server does not support STARTTLS")
	// ErrSMTPSend wraps every failure reported while talking to the relay.
	ErrSMTPSend = errors.New("smtp send failed")
)

// TLSMode selects the transport security of the SMTP session.
type TLSMode string

const (
	// TLSModeAuto upgrades with STARTTLS when the server offers it.
	TLSModeAuto TLSMode = "auto"
	// TLSModeStartTLS requires a STARTTLS upgrade.
	TLSModeStartTLS TLSMode = "starttls"
	// TLSModeTLS connects with implicit TLS, usually port 465.
	TLSModeTLS TLSMode = "tls"
	// TLSModePlain never encrypts. net/smtp only sends credentials in this
	// mode when the server is on localhost.
	TLSModePlain TLSMode = "plain"
)

// ParseTLSMode converts a configuration value into a TLSMode.
// An empty value means TLSModeAuto.
func ParseTLSMode(s string) (TLSMode, error) {
	switch mode := TLSMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return TLSModeAuto, nil
	case TLSModeAuto, TLSModeStartTLS, TLSModeTLS, TLSModePlain:
		return mode, nil
	case "none":
		return TLSModePlain, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrSMTPInvalidTLSMode, s)
	}
}

// SMTPConfig configures the SMTP implementation.
type SMTPConfig struct {
	// Host is the SMTP server hostname.
	Host string
	// Port is the SMTP server port.
	Port int
	// Username is the SMTP authentication username.
	Username string
	// Password is the SMTP authentication password.
	Password string
	// From is the default sender when Message.From is empty.
	From string
	// TLSMode selects the transport security; empty means TLSModeAuto.
	TLSMode TLSMode
	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool
	// ConnectionTimeout bounds the TCP (and implicit TLS) dial.
	ConnectionTimeout time.Duration
	// GreetingTimeout bounds the wait for the server's 220 greeting.
	GreetingTimeout time.Duration
	// SocketTimeout bounds the rest of the session after the greeting.
	SocketTimeout time.Duration
	// LocalName is the name sent with EHLO; net/smtp uses "localhost" when empty.
	LocalName string
	// IDGenerator generates the local part of Message-ID headers.
	IDGenerator uid.StringID
}

// SMTP is a Mail implementation backed by net/smtp.
type SMTP struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
}

// NewSMTP constructs an SMTP mail sender.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrSMTPHostPortRequired
	}

	mode, err := ParseTLSMode(string(cfg.TLSMode))
	if err != nil {
		return nil, err
	}
	cfg.TLSMode = mode

	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uid.NewUUID()
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTP{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
	}, nil
}

// Send delivers a message over SMTP.
//
// The returned Receipt carries the Message-ID written into the headers and
// the server's reply to the end of DATA.
func (s *SMTP) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	recipients := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.Cc...)
	recipients = append(recipients, msg.Bcc...)
	if len(recipients) == 0 {
		return Receipt{}, ErrSMTPNoRecipients
	}

	from := msg.From
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		return Receipt{}, ErrSMTPNoSender
	}

	messageID := s.messageID(from)
	doc := compose(msg, from, messageID)

	c, done, err := s.open(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer done()

	if err := c.Mail(from); err != nil {
		return Receipt{}, s.fail(ctx, err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return Receipt{}, s.fail(ctx, err)
		}
	}

	response, err := writeData(c, doc)
	if err != nil {
		return Receipt{}, s.fail(ctx, err)
	}

	// The message is accepted once DATA is acknowledged.
	_ = c.Quit()

	return Receipt{MessageID: messageID, Response: response}, nil
}

// Verify opens a session, authenticates when credentials are configured and quits.
func (s *SMTP) Verify(ctx context.Context) error {
	c, done, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := c.Quit(); err != nil {
		return s.fail(ctx, err)
	}
	return nil
}

// Close implements io.Closer; connections are not pooled.
func (s *SMTP) Close() error {
	return nil
}

// open dials, reads the greeting, negotiates TLS and authenticates. The
// returned func releases the connection and must always be called.
func (s *SMTP) open(ctx context.Context) (*smtp.Client, func(), error) {
	dialer := &net.Dialer{Timeout: s.cfg.ConnectionTimeout}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.TLSMode == TLSModeTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsConfig()}).DialContext(ctx, "tcp", s.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return nil, nil, s.fail(ctx, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	if s.cfg.GreetingTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.GreetingTimeout))
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, s.fail(ctx, err)
	}

	done := func() {
		stop()
		_ = c.Close()
	}

	deadline := time.Time{}
	if s.cfg.SocketTimeout > 0 {
		deadline = time.Now().Add(s.cfg.SocketTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if err := s.handshake(c); err != nil {
		done()
		return nil, nil, s.fail(ctx, err)
	}

	return c, done, nil
}

func (s *SMTP) handshake(c *smtp.Client) error {
	if s.cfg.LocalName != "" {
		if err := c.Hello(s.cfg.LocalName); err != nil {
			return err
		}
	}

	switch s.cfg.TLSMode {
	case TLSModeStartTLS, TLSModeAuto:
		ok, _ := c.Extension("STARTTLS")
		if ok {
			if err := c.StartTLS(s.tlsConfig()); err != nil {
				return err
			}
		} else if s.cfg.TLSMode == TLSModeStartTLS {
			return ErrSMTPStartTLSUnsupported
		}
	}

	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return err
		}
	}

	return nil
}

func (s *SMTP) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed relays
		MinVersion:         tls.VersionTLS12,
	}
}

// fail wraps a relay error, preferring the context error when the session
// was torn down by cancellation.
func (s *SMTP) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrSMTPSend, ctxErr)
	}
	return fmt.Errorf("%w: %w", ErrSMTPSend, err)
}

func (s *SMTP) messageID(from string) string {
	domain := s.cfg.Host
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return "<" + s.cfg.IDGenerator.Generate() + "@" + domain + ">"
}

// writeData runs the DATA exchange by hand so the final reply line can be
// reported back to the caller.
func writeData(c *smtp.Client, doc *gomail.Message) (string, error) {
	id, err := c.Text.Cmd("DATA")
	if err != nil {
		return "", err
	}

	c.Text.StartResponse(id)
	_, _, err = c.Text.ReadResponse(354)
	c.Text.EndResponse(id)
	if err != nil {
		return "", err
	}

	w := c.Text.DotWriter()
	if _, err := doc.WriteTo(w); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	code, text, err := c.Text.ReadResponse(250)
	if err != nil {
		return "", err
	}

	return strconv.Itoa(code) + " " + text, nil
}

func compose(msg Message, from, messageID string) *gomail.Message {
	m := gomail.NewMessage()

	from = headerValue(from)
	name := fitHeader(msg.FromName, len("From: "), func(v string) string {
		return m.FormatAddress(from, v)
	})
	if name != "" {
		m.SetAddressHeader("From", from, name)
	} else {
		m.SetHeader("From", from)
	}
	if len(msg.To) > 0 {
		m.SetHeader("To", headerValues(msg.To)...)
	}
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", headerValues(msg.Cc)...)
	}
	if replyTo := headerValue(msg.ReplyTo); replyTo != "" {
		m.SetHeader("Reply-To", replyTo)
	}
	m.SetHeader("Subject", fitHeader(msg.Subject, len("Subject: "), func(v string) string {
		return mime.QEncoding.Encode("UTF-8", v)
	}))
	m.SetHeader("Message-ID", messageID)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	return m
}

var headerReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks so user supplied values cannot add headers.
func headerValue(v string) string {
	return strings.TrimSpace(headerReplacer.Replace(v))
}

// maxHeaderLine is the RFC 5322 limit for one header line, excluding CRLF.
const maxHeaderLine = 998

// fitHeader folds line breaks out of v and drops trailing runes until the
// rendered value plus prefix fits in maxHeaderLine.
func fitHeader(v string, prefix int, render func(string) string) string {
	v = headerValue(v)
	budget := maxHeaderLine - prefix
	if runes := []rune(v); len(runes) > budget {
		v = string(runes[:budget])
	}

	for v != "" && len(render(v)) > budget {
		_, size := utf8.DecodeLastRuneInString(v)
		v = v[:len(v)-size]
	}

	return strings.TrimSpace(v)
}

func headerValues(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, headerValue(v))
	}
	return out
}
