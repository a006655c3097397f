package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/coursebook-app/coursebook/internal/jobs"
)

// Mailer delivers queued transactional mail over SMTP.
type Mailer struct {
	addr    string
	from    string
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewMailer constructs a Mailer for the given SMTP endpoint.
func NewMailer(host string, port int, from string, logger *slog.Logger) *Mailer {
	return &Mailer{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		logger: logger,
	}
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) (err error) {
	defer func(tracker *jobmetrics.Tracker) {
		err = tracker.End(err)
	}(m.jobMetrics().Track(TaskTypeSendEmail))
	return m.handleSendEmail(ctx, t)
}

func (m *Mailer) jobMetrics() *jobmetrics.Metrics {
	if m.metrics == nil {
		m.metrics = jobmetrics.NewMetrics(nil)
	}
	return m.metrics
}

func (m *Mailer) handleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("mailer: decode payload: %w", asynq.SkipRetry)
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}

	msg := buildMessage(m.from, payload)
	if err := smtp.SendMail(m.addr, nil, m.from, []string{payload.To}, msg); err != nil {
		m.logger.Warn("send email",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject),
			slog.Any("error", err))
		return err
	}
	m.logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

func buildMessage(from string, payload SendEmailPayload) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + payload.To + "\r\n")
	b.WriteString("Subject: " + payload.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(payload.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
