package app

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/cors"
	"github.com/shandysiswandi/contactrelay/internal/inquiry/usecase"
	"github.com/shandysiswandi/contactrelay/internal/pkg/clock"
	"github.com/shandysiswandi/contactrelay/internal/pkg/config"
	"github.com/shandysiswandi/contactrelay/internal/pkg/goroutine"
	"github.com/shandysiswandi/contactrelay/internal/pkg/instrument"
	"github.com/shandysiswandi/contactrelay/internal/pkg/mail"
	"github.com/shandysiswandi/contactrelay/internal/pkg/router"
	"github.com/shandysiswandi/contactrelay/internal/pkg/uid"
	"github.com/shandysiswandi/contactrelay/internal/pkg/validator"
)

const defaultConfigPath = "./config/config.yaml"

// defaultLogMaskFields covers credentials and the inquirer's personal data.
const defaultLogMaskFields = "pass,password,authorization,cookie,name,email,phone,message"

// configOptions are the defaults and legacy environment names every
// deployment relies on.
func configOptions() []config.ViperOption {
	return []config.ViperOption{
		config.WithDotEnv(".env"),
		config.WithEnvAlias("app.server.http.port", "PORT"),
		config.WithEnvAlias("app.server.cors", "FRONTEND_URL"),
		config.WithDefault("app.name", "contactrelay"),
		config.WithDefault("app.liveness_text", router.DefaultLivenessText),
		config.WithDefault("app.server.http.port", 5000),
		config.WithDefault("app.server.http.read_timeout_seconds", 15),
		config.WithDefault("app.server.http.read_header_timeout_seconds", 5),
		config.WithDefault("app.server.http.write_timeout_seconds", 90),
		config.WithDefault("app.server.http.idle_timeout_seconds", 60),
		config.WithDefault("smtp.host", "smtp.zoho.in"),
		config.WithDefault("smtp.port", 587),
		config.WithDefault("smtp.connection_timeout_seconds", 10),
		config.WithDefault("smtp.greeting_timeout_seconds", 10),
		config.WithDefault("smtp.socket_timeout_seconds", 60),
		config.WithDefault("smtp.verify_on_start", true),
		config.WithDefault("inquiry.subject_template", usecase.DefaultSubjectTemplate),
		config.WithDefault("inquiry.subject_fallback", "General"),
		config.WithDefault("inquiry.success_message", usecase.DefaultSuccessMessage),
		config.WithDefault("instrument.service_name", "contactrelay"),
		config.WithDefault("instrument.log_mask_fields", defaultLogMaskFields),
	}
}

func (a *App) initConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.NewViper(path, configOptions()...)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		os.Exit(1)
	}

	if tz := cfg.GetString("app.tz"); tz != "" {
		//nolint:errcheck,gosec // ignore error
		os.Setenv("TZ", tz)
	}

	a.config = cfg
}

func instrumentConfigFrom(cfg config.Config) *instrument.Config {
	return &instrument.Config{
		Enabled:          cfg.GetBool("instrument.enabled"),
		ServiceName:      cfg.GetString("instrument.service_name"),
		ServiceVersion:   cfg.GetString("instrument.service_version"),
		Environment:      cfg.GetString("instrument.env"),
		OTLPEndpoint:     cfg.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       cfg.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: cfg.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  cfg.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       cfg.GetArray("instrument.log_mask_fields"),
		LogLevel:         cfg.GetString("instrument.log_level"),
	}
}

func (a *App) initInstrument() {
	ins, err := instrument.New(a.ctx, instrumentConfigFrom(a.config))
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator
}

// smtpConfigFrom maps smtp.* keys to the relay configuration. SMTP_SECURE=true
// selects implicit TLS unless smtp.tls_mode says otherwise.
func smtpConfigFrom(cfg config.Config, ids uid.StringID) (mail.SMTPConfig, error) {
	modeValue := cfg.GetString("smtp.tls_mode")
	if modeValue == "" && cfg.GetBool("smtp.secure") {
		modeValue = string(mail.TLSModeTLS)
	}

	mode, err := mail.ParseTLSMode(modeValue)
	if err != nil {
		return mail.SMTPConfig{}, err
	}

	return mail.SMTPConfig{
		Host:               cfg.GetString("smtp.host"),
		Port:               cfg.GetInt("smtp.port"),
		Username:           cfg.GetString("smtp.user"),
		Password:           cfg.GetString("smtp.pass"),
		From:               inquiryMailbox(cfg),
		TLSMode:            mode,
		InsecureSkipVerify: cfg.GetBool("smtp.insecure_skip_verify"),
		ConnectionTimeout:  cfg.GetSecond("smtp.connection_timeout_seconds"),
		GreetingTimeout:    cfg.GetSecond("smtp.greeting_timeout_seconds"),
		SocketTimeout:      cfg.GetSecond("smtp.socket_timeout_seconds"),
		LocalName:          cfg.GetString("smtp.local_name"),
		IDGenerator:        ids,
	}, nil
}

func (a *App) initMail() {
	smtpCfg, err := smtpConfigFrom(a.config, a.uuid)
	if err != nil {
		slog.Error("failed to read smtp config", "error", err)
		os.Exit(1)
	}

	mailer, err := mail.NewSMTP(smtpCfg)
	if err != nil {
		slog.Error("failed to init mail", "error", err)
		os.Exit(1)
	}
	a.mail = mailer

	if !a.config.GetBool("smtp.verify_on_start") {
		return
	}

	a.goroutine.Go(a.ctx, "smtp-verify", func(ctx context.Context) error {
		timeout := smtpCfg.ConnectionTimeout + smtpCfg.GreetingTimeout + smtpCfg.SocketTimeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := a.mail.Verify(ctx); err != nil {
			slog.ErrorContext(ctx, "smtp connection failed", "host", smtpCfg.Host, "port", smtpCfg.Port, "error", err)
			return nil
		}
		slog.InfoContext(ctx, "smtp connected successfully", "host", smtpCfg.Host, "port", smtpCfg.Port)
		return nil
	})
}

// inquiryMailbox falls back to the SMTP login, which is the usual sender
// for hosted mailboxes.
func inquiryMailbox(cfg config.Config) string {
	if mailbox := cfg.GetString("inquiry.mailbox"); mailbox != "" {
		return mailbox
	}
	return cfg.GetString("smtp.user")
}

func inquirySettingsFrom(cfg config.Config) usecase.Settings {
	return usecase.Settings{
		Mailbox:         inquiryMailbox(cfg),
		FromDisplayName: cfg.GetBool("inquiry.from_display_name"),
		SubjectTemplate: cfg.GetString("inquiry.subject_template"),
		SubjectFallback: cfg.GetString("inquiry.subject_fallback"),
		SuccessMessage:  cfg.GetString("inquiry.success_message"),
	}
}

// corsOptionsFrom allows any origin unless app.server.cors (FRONTEND_URL)
// lists specific ones.
func corsOptionsFrom(cfg config.Config) cors.Options {
	return cors.Options{
		AllowedOrigins: cfg.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type"},
	}
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:       a.config,
		UUID:         a.uuid,
		Instrument:   a.ins,
		Clock:        a.clock,
		LivenessText: a.config.GetString("app.liveness_text"),
	})

	a.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.config.GetInt("app.server.http.port"))),
		Handler:           cors.New(corsOptionsFrom(a.config)).Handler(a.router),
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	a.closers = []struct {
		name string
		fn   func(context.Context) error
	}{
		{
			name: "Mail",
			fn: func(context.Context) error {
				return a.mail.Close()
			},
		},
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}
