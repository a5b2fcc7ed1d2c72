package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/contactrelay/internal/inquiry"
)

func (a *App) initModules() {
	if err := inquiry.New(inquiry.Dependency{
		Settings:   inquirySettingsFrom(a.config),
		Instrument: a.ins,
		Validator:  a.validator,
		Router:     a.router,
		Mail:       a.mail,
	}); err != nil {
		slog.Error("failed to init module inquiry", "error", err)
		os.Exit(1)
	}
}
