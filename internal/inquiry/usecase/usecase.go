package usecase

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"text/template"

	"github.com/shandysiswandi/contactrelay/internal/inquiry/entity"
	"github.com/shandysiswandi/contactrelay/internal/pkg/instrument"
	"github.com/shandysiswandi/contactrelay/internal/pkg/mail"
	"github.com/shandysiswandi/contactrelay/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied by New when a Settings field is empty.
const (
	DefaultSubjectTemplate = "Website Inquiry - {{.Service}}"
	DefaultSuccessMessage  = "Email sent successfully"
	DefaultFailureMessage  = "Failed to send email"
)

const htmlBodyTemplate = `
<h2>New Inquiry from Website</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Phone:</strong> {{.Phone}}</p>
<p><strong>Service:</strong> {{.Service}}</p>
<p><strong>Message:</strong><br/>{{.Message}}</p>
`

const textBodyTemplate = `New Inquiry from Website

Name: {{.Name}}
Email: {{.Email}}
Phone: {{.Phone}}
Service: {{.Service}}

Message:
{{.Message}}
`

// Settings is the immutable relay configuration snapshotted at startup.
type Settings struct {
	// Mailbox is both the sender and the recipient of relayed inquiries.
	Mailbox string `validate:"required,email,nocrlf"`
	// FromDisplayName shows the inquirer's name as the From display name.
	FromDisplayName bool
	// SubjectTemplate is a text/template rendered with the subject data.
	SubjectTemplate string
	// SubjectFallback replaces an absent service in the subject.
	SubjectFallback string `validate:"omitempty,nocrlf"`
	// SuccessMessage is echoed to the caller after a relay succeeds.
	SuccessMessage string
}

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) (mail.Receipt, error)
}

type Dependency struct {
	Settings   Settings
	Validator  validator.Validator
	RepoMail   repoMail
	Instrument instrument.Instrumentation
}

type Usecase struct {
	settings  Settings
	validator validator.Validator
	repoMail  repoMail
	ins       instrument.Instrumentation

	subjectTpl *template.Template
	htmlTpl    *htmltemplate.Template
	textTpl    *template.Template
}

// New parses the message templates once. An invalid subject template is a
// startup error.
func New(dep Dependency) (*Usecase, error) {
	settings := dep.Settings
	if settings.SubjectTemplate == "" {
		settings.SubjectTemplate = DefaultSubjectTemplate
	}
	if settings.SubjectFallback == "" {
		settings.SubjectFallback = entity.DefaultSubjectService
	}
	if settings.SuccessMessage == "" {
		settings.SuccessMessage = DefaultSuccessMessage
	}

	subjectTpl, err := template.New("subject").Option("missingkey=zero").Parse(settings.SubjectTemplate)
	if err != nil {
		return nil, err
	}

	ins := dep.Instrument
	if ins == nil {
		ins = instrument.NewNoop()
	}

	return &Usecase{
		settings:   settings,
		validator:  dep.Validator,
		repoMail:   dep.RepoMail,
		ins:        ins,
		subjectTpl: subjectTpl,
		htmlTpl:    htmltemplate.Must(htmltemplate.New("html").Parse(htmlBodyTemplate)),
		textTpl:    template.Must(template.New("text").Parse(textBodyTemplate)),
	}, nil
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("inquiry.usecase").Start(ctx, name)
}

type bodyData struct {
	Name    string
	Email   string
	Phone   string
	Service string
	Message string
}

type subjectData struct {
	Name    string
	Service string
}

func (s *Usecase) render(inq entity.Inquiry) (subject, html, text string, err error) {
	var buf bytes.Buffer

	if err = s.subjectTpl.Execute(&buf, subjectData{
		Name:    inq.Name,
		Service: inq.SubjectService(s.settings.SubjectFallback),
	}); err != nil {
		return "", "", "", err
	}
	subject = buf.String()

	data := bodyData{
		Name:    inq.Name,
		Email:   inq.Email,
		Phone:   inq.PhoneOrDefault(),
		Service: inq.ServiceOrDefault(),
		Message: inq.Message,
	}

	buf.Reset()
	if err = s.htmlTpl.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	html = buf.String()

	buf.Reset()
	if err = s.textTpl.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	text = buf.String()

	return subject, html, text, nil
}
