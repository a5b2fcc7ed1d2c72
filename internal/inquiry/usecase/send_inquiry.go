package usecase

import (
	"context"
	"log/slog"
	netmail "net/mail"

	"github.com/shandysiswandi/contactrelay/internal/inquiry/entity"
	"github.com/shandysiswandi/contactrelay/internal/pkg/goerror"
	"github.com/shandysiswandi/contactrelay/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MsgMissingFields is the caller-facing text for an incomplete inquiry.
const MsgMissingFields = "Missing required fields: name, email, or message"

type SendInquiryInput struct {
	Name    string `validate:"required"`
	Email   string `validate:"required"`
	Phone   string
	Service string
	Message string `validate:"required"`
}

type SendInquiryOutput struct {
	Message   string
	MessageID string
	Response  string
}

// SendInquiry relays one inquiry to the configured mailbox.
//
// The relay runs detached from ctx cancellation: once accepted, a request
// whose client went away still delivers its email. Nothing is retried.
func (s *Usecase) SendInquiry(ctx context.Context, in SendInquiryInput) (*SendInquiryOutput, error) {
	ctx, span := s.startSpan(ctx, "SendInquiry")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.DebugContext(ctx, "inquiry rejected", "fields", err)
		return nil, goerror.NewInvalidInput(MsgMissingFields, err)
	}

	inq := entity.Inquiry{
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Service: in.Service,
		Message: in.Message,
	}

	subject, html, text, err := s.render(inq)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render inquiry email", "error", err)
		return nil, goerror.NewServer(err, DefaultFailureMessage)
	}

	msg := mail.Message{
		From:     s.settings.Mailbox,
		To:       []string{s.settings.Mailbox},
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	}
	if s.settings.FromDisplayName {
		msg.FromName = inq.Name
	}

	if addr, err := netmail.ParseAddress(inq.Email); err == nil {
		msg.ReplyTo = addr.Address
	} else {
		slog.WarnContext(ctx, "inquiry email is not a valid address, reply-to omitted", "error", err)
	}

	receipt, err := s.repoMail.Send(context.WithoutCancel(ctx), msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to relay inquiry email", "error", err)

		text := err.Error()
		if text == "" {
			text = DefaultFailureMessage
		}
		return nil, goerror.NewServer(err, text)
	}

	span.SetAttributes(attribute.String("mail.message_id", receipt.MessageID))
	slog.InfoContext(ctx, "inquiry email relayed", "message_id", receipt.MessageID, "response", receipt.Response)

	return &SendInquiryOutput{
		Message:   s.settings.SuccessMessage,
		MessageID: receipt.MessageID,
		Response:  receipt.Response,
	}, nil
}
