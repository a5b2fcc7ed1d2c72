package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/shandysiswandi/contactrelay/internal/pkg/config"
	"github.com/shandysiswandi/contactrelay/internal/pkg/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T, yaml string) config.Config {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml), configOptions()...)
	require.NoError(t, err)
	return cfg
}

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func TestSMTPConfigFrom(t *testing.T) {
	cfg := newConfig(t, `
smtp:
  user: hello@example.com
  pass: secret
  secure: true
  port: 465
`)

	got, err := smtpConfigFrom(cfg, fixedID("x"))
	require.NoError(t, err)

	assert.Equal(t, "smtp.zoho.in", got.Host)
	assert.Equal(t, 465, got.Port)
	assert.Equal(t, "hello@example.com", got.Username)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, "hello@example.com", got.From)
	assert.Equal(t, mail.TLSModeTLS, got.TLSMode)
	assert.Equal(t, 10*time.Second, got.ConnectionTimeout)
	assert.Equal(t, 10*time.Second, got.GreetingTimeout)
	assert.Equal(t, 60*time.Second, got.SocketTimeout)
	assert.Equal(t, fixedID("x"), got.IDGenerator)
}

func TestSMTPConfigFrom_TLSModeWins(t *testing.T) {
	cfg := newConfig(t, `
smtp:
  secure: true
  tls_mode: starttls
inquiry:
  mailbox: sales@example.com
`)

	got, err := smtpConfigFrom(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, mail.TLSModeStartTLS, got.TLSMode)
	assert.Equal(t, 587, got.Port)
	assert.Equal(t, "sales@example.com", got.From)

	_, err = smtpConfigFrom(newConfig(t, "smtp: {tls_mode: ssl}"), nil)
	assert.ErrorIs(t, err, mail.ErrSMTPInvalidTLSMode)
}

func TestSMTPConfigFrom_LegacyEnvironment(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_SECURE", "false")
	t.Setenv("SMTP_USER", "env@example.com")
	t.Setenv("SMTP_PASS", "env-secret")

	got, err := smtpConfigFrom(newConfig(t, "app: {}"), nil)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", got.Host)
	assert.Equal(t, 2525, got.Port)
	assert.Equal(t, mail.TLSModeAuto, got.TLSMode)
	assert.Equal(t, "env@example.com", got.Username)
	assert.Equal(t, "env-secret", got.Password)
}

func TestInquirySettingsFrom(t *testing.T) {
	got := inquirySettingsFrom(newConfig(t, `
smtp:
  user: hello@example.com
inquiry:
  from_display_name: true
`))

	assert.Equal(t, "hello@example.com", got.Mailbox)
	assert.True(t, got.FromDisplayName)
	assert.Equal(t, "Website Inquiry - {{.Service}}", got.SubjectTemplate)
	assert.Equal(t, "General", got.SubjectFallback)
	assert.Equal(t, "Email sent successfully", got.SuccessMessage)
}

func TestCORSOptionsFrom(t *testing.T) {
	opts := corsOptionsFrom(newConfig(t, "app: {}"))
	assert.Empty(t, opts.AllowedOrigins)
	assert.Equal(t, []string{"Content-Type"}, opts.AllowedHeaders)

	t.Setenv("FRONTEND_URL", "https://site.example.com")
	opts = corsOptionsFrom(newConfig(t, "app: {}"))
	assert.Equal(t, []string{"https://site.example.com"}, opts.AllowedOrigins)
}

func TestInstrumentConfigFrom(t *testing.T) {
	got := instrumentConfigFrom(newConfig(t, `
instrument:
  log_level: debug
  trace_sample_ratio: 0.5
`))

	assert.False(t, got.Enabled)
	assert.Equal(t, "contactrelay", got.ServiceName)
	assert.Equal(t, "debug", got.LogLevel)
	assert.InDelta(t, 0.5, got.TraceSampleRatio, 0.0001)
	assert.Equal(t, []string{"pass", "password", "authorization", "cookie", "name", "email", "phone", "message"}, got.MaskFields)
}

type smtpBackend struct {
	mu    sync.Mutex
	datas []string
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{be: b}, nil
}

type smtpSession struct {
	be *smtpBackend
}

func (s *smtpSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *smtpSession) Auth(_ string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != "relay@example.com" || password != "secret" {
			return errors.New("invalid credentials")
		}
		return nil
	}), nil
}

func (s *smtpSession) Mail(string, *smtp.MailOptions) error { return nil }

func (s *smtpSession) Rcpt(string, *smtp.RcptOptions) error { return nil }

func (s *smtpSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.be.mu.Lock()
	s.be.datas = append(s.be.datas, string(b))
	s.be.mu.Unlock()
	return nil
}

func (s *smtpSession) Reset() {}

func (s *smtpSession) Logout() error { return nil }

func TestApp_SendEmailEndToEnd(t *testing.T) {
	be := &smtpBackend{}
	smtpListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	go func() { _ = srv.Serve(smtpListener) }()
	t.Cleanup(func() { _ = srv.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, fmt.Appendf(nil, `
app:
  liveness_text: "relay ok"
smtp:
  host: 127.0.0.1
  port: %d
  tls_mode: plain
  user: relay@example.com
  pass: secret
  verify_on_start: true
`, smtpListener.Addr().(*net.TCPAddr).Port), 0o600))
	t.Setenv("CONFIG_PATH", cfgPath)

	application := New()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errc := application.Serve(l)
	baseURL := "http://" + l.Addr().String()

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(baseURL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "relay ok", string(body))

	resp, err = client.Post(baseURL+"/api/send-email", "application/json",
		strings.NewReader(`{"name":"Jane","email":"jane@example.org","service":"SEO","message":"Hello"}`))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Email sent successfully", out["message"])
	assert.Equal(t, out["messageId"], out["id"])
	assert.Contains(t, out["id"], "@example.com>")

	be.mu.Lock()
	require.Len(t, be.datas, 1)
	assert.Contains(t, be.datas[0], "Subject: Website Inquiry - SEO")
	assert.Contains(t, be.datas[0], "Reply-To: jane@example.org")
	be.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	application.Stop(ctx)

	assert.ErrorIs(t, <-errc, http.ErrServerClosed)
}
