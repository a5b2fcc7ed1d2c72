package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/contactrelay/internal/pkg/instrument"
	"github.com/shandysiswandi/contactrelay/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type Mail struct {
	client   mail.Mail
	ins      instrument.Instrumentation
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

func New(client mail.Mail, ins instrument.Instrumentation) *Mail {
	meter := ins.Meter("inquiry.outbound.email")

	total, err := meter.Int64Counter("inquiry.relay.total", metric.WithDescription("Number of relay attempts by result"))
	if err != nil {
		slog.Error("failed to create relay counter", "error", err)
	}

	duration, err := meter.Float64Histogram("inquiry.relay.duration",
		metric.WithDescription("Relay duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		slog.Error("failed to create relay duration histogram", "error", err)
	}

	return &Mail{client: client, ins: ins, total: total, duration: duration}
}

func (m *Mail) Send(ctx context.Context, msg mail.Message) (mail.Receipt, error) {
	ctx, span := m.ins.Tracer("inquiry.outbound.email").Start(ctx, "Send")
	defer span.End()

	start := time.Now()
	receipt, err := m.client.Send(ctx, msg)
	elapsedMs := float64(time.Since(start).Milliseconds())

	result := "success"
	if err != nil {
		result = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("mail.message_id", receipt.MessageID))
	}

	attrs := metric.WithAttributes(attribute.String("result", result))
	if m.total != nil {
		m.total.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsedMs, attrs)
	}

	return receipt, err
}
