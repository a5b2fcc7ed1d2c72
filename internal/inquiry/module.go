package inquiry

import (
	"errors"

	"github.com/shandysiswandi/contactrelay/internal/inquiry/inbound"
	"github.com/shandysiswandi/contactrelay/internal/inquiry/outbound/email"
	"github.com/shandysiswandi/contactrelay/internal/inquiry/usecase"
	"github.com/shandysiswandi/contactrelay/internal/pkg/instrument"
	"github.com/shandysiswandi/contactrelay/internal/pkg/mail"
	"github.com/shandysiswandi/contactrelay/internal/pkg/router"
	"github.com/shandysiswandi/contactrelay/internal/pkg/validator"
)

// ErrValidatorRequired is returned by New when no validator is supplied.
var ErrValidatorRequired = errors.New("inquiry: validator is required")

type Dependency struct {
	Settings   usecase.Settings
	Instrument instrument.Instrumentation `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Mail       mail.Mail                  `validate:"required"`
}

func New(dep Dependency) error {
	if dep.Validator == nil {
		return ErrValidatorRequired
	}
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	uc, err := usecase.New(usecase.Dependency{
		Settings:   dep.Settings,
		Validator:  dep.Validator,
		RepoMail:   email.New(dep.Mail, dep.Instrument),
		Instrument: dep.Instrument,
	})
	if err != nil {
		return err
	}

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}
