// Package notify defines the outbound email capability consumed by the
// auth and admin flows. Delivery is best-effort: callers treat failures
// as log-and-continue, never as a reason to roll back a state change.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursebook-app/coursebook/jobs"
)

// Purpose identifies why a verification code is being sent.
type Purpose string

const (
	// PurposeRegistration verifies a newly registered email address.
	PurposeRegistration Purpose = "registration"
	// PurposeTwoFactor is the second factor challenge after a correct password.
	PurposeTwoFactor Purpose = "two_factor"
	// PurposeReverification reactivates an account suspended by lockout.
	PurposeReverification Purpose = "reverification"
	// PurposeReset accompanies a password reset token.
	PurposeReset Purpose = "password_reset"
)

// Notifier sends account-related mail.
type Notifier interface {
	SendCode(ctx context.Context, email, code string, purpose Purpose) error
	SendBanNotice(ctx context.Context, email, reason string) error
}

// QueueNotifier enqueues mail onto the background job queue, where the
// worker delivers it over SMTP.
type QueueNotifier struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(client *jobs.Client, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, logger: logger}
}

// SendCode queues a verification code email for the given purpose.
func (n *QueueNotifier) SendCode(ctx context.Context, email, code string, purpose Purpose) error {
	subject, body := codeMessage(code, purpose)
	_, err := n.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		n.logger.Warn("enqueue code email",
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
	}
	return err
}

// SendBanNotice queues a ban notification email.
func (n *QueueNotifier) SendBanNotice(ctx context.Context, email, reason string) error {
	_, err := n.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: "Your account has been banned",
		Body: fmt.Sprintf("Your account has been banned for the following reason:\n\n%s\n\n"+
			"If you believe this is a mistake, please contact support.", reason),
	})
	if err != nil {
		n.logger.Warn("enqueue ban notice", slog.Any("error", err))
	}
	return err
}

func codeMessage(code string, purpose Purpose) (subject, body string) {
	switch purpose {
	case PurposeReset:
		return "Password reset request",
			fmt.Sprintf("You requested a password reset. Use the following token to reset your password:\n\n%s\n\n"+
				"If you did not request this, please ignore this email.", code)
	case PurposeReverification:
		return "Account reactivation code",
			fmt.Sprintf("Your account was suspended after repeated failed login attempts. "+
				"Use the following code to reactivate it:\n\n%s\n\nThis code is valid for a few minutes.", code)
	case PurposeTwoFactor:
		return "Your login verification code",
			fmt.Sprintf("Use the following code to finish signing in:\n\n%s\n\nThis code is valid for a few minutes.", code)
	default:
		return "Account verification code",
			fmt.Sprintf("To verify your account, please use the following code:\n\n%s\n\n"+
				"This code is valid for a few minutes.\n\nIf you did not request this, please ignore this email.", code)
	}
}

var _ Notifier = (*QueueNotifier)(nil)
