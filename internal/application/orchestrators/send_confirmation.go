package orchestrators

import (
	"context"
	"log/slog"

	"confreg/internal/adapters/metrics"
	emailAdapter "confreg/internal/adapters/email"
	emailDomain "confreg/internal/domain/email"
	"confreg/internal/domain/registration"
)

// SendConfirmationDeps holds dependencies for SendConfirmation.
type SendConfirmationDeps struct {
	Sender  emailAdapter.Sender
	From    string
	ReplyTo string
	Metrics *metrics.Metrics
}

// ExecuteSendConfirmation emails the sponsor or vendor contact of r.
// Ineligible registrations are skipped silently. Failures are logged and dropped.
// PRE: r has been persisted
// POST: at most one Send call
func ExecuteSendConfirmation(ctx context.Context, r registration.Registration, deps SendConfirmationDeps) {
	if deps.Sender == nil || !emailDomain.Eligible(r) {
		return
	}

	msg, err := emailDomain.Confirmation(r)
	if err == nil {
		err = msg.Validate()
	}
	if err != nil {
		confirmationFailed(r, err, deps.Metrics)
		return
	}

	html, err := emailAdapter.RenderMarkdown(msg.Markdown)
	if err != nil {
		confirmationFailed(r, err, deps.Metrics)
		return
	}

	res, err := deps.Sender.Send(ctx, emailAdapter.SendRequest{
		To:      msg.To,
		From:    deps.From,
		Subject: msg.Subject,
		HTML:    html,
		Text:    msg.Markdown,
		ReplyTo: deps.ReplyTo,
	})
	if err != nil {
		confirmationFailed(r, err, deps.Metrics)
		return
	}
	slog.Info("confirmation_sent", "registration_id", r.ID, "message_id", res.MessageID)
}

// ConfirmationHook adapts ExecuteSendConfirmation to SubmitRegistrationDeps.Confirm.
func ConfirmationHook(deps SendConfirmationDeps) func(ctx context.Context, r registration.Registration) {
	return func(ctx context.Context, r registration.Registration) {
		ExecuteSendConfirmation(ctx, r, deps)
	}
}

func confirmationFailed(r registration.Registration, err error, m *metrics.Metrics) {
	m.EmailFailed()
	slog.Warn("confirmation_failed", "registration_id", r.ID, "error", err)
}
