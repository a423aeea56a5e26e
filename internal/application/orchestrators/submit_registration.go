package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"confreg/internal/adapters/metrics"
	registrationStore "confreg/internal/adapters/storage/registration"
	"confreg/internal/domain/registration"
)

// RegistrationStoreForSubmit defines the store interface needed by SubmitRegistration.
type RegistrationStoreForSubmit interface {
	Insert(ctx context.Context, r registration.Registration) (registration.Registration, error)
}

// SubmitRegistrationInput carries input for the submission adapter.
type SubmitRegistrationInput struct {
	Form registration.FormData
}

// SubmitRegistrationDeps holds dependencies for SubmitRegistration.
type SubmitRegistrationDeps struct {
	Store   RegistrationStoreForSubmit
	Now     func() time.Time
	Metrics *metrics.Metrics
	// Confirm runs after a successful insert. Its failure never affects the result.
	Confirm func(ctx context.Context, r registration.Registration)
}

// SubmitResult is the uniform outcome of a submission.
type SubmitResult struct {
	Success bool
	Record  registration.Registration
	Message string
	Err     error
}

// Submission messages. A failure names its kind when the store reports one;
// backend error text is never shown.
const (
	MsgSubmitted         = "Registration submitted successfully!"
	MsgSubmitFailed      = "Registration failed. Please try again."
	MsgSubmitRejected    = "Registration failed: the submitted details were not accepted. Please review them and try again."
	MsgSubmitUnavailable = "Registration failed: the registration service is unavailable. Please try again in a moment."
)

// ErrSubmitFailed wraps any backend failure during submission.
var ErrSubmitFailed = errors.New("registration failed")

// ExecuteSubmitRegistration maps the form into the stored shape and performs one insert.
// Backend failures and panics become a failed result.
// PRE: input.Form has passed validation for every step
// POST: exactly one Insert call; Success iff it returned without error
func ExecuteSubmitRegistration(ctx context.Context, input SubmitRegistrationInput, deps SubmitRegistrationDeps) (result SubmitResult) {
	defer func() {
		if r := recover(); r != nil {
			result = submitFailure(input.Form, fmt.Errorf("%w: panic: %v", ErrSubmitFailed, r), deps.Metrics)
		}
	}()

	rec := registration.FromForm(input.Form, deps.Now())
	saved, err := deps.Store.Insert(ctx, rec)
	if err != nil {
		return submitFailure(input.Form, fmt.Errorf("%w: %w", ErrSubmitFailed, err), deps.Metrics)
	}

	deps.Metrics.Submission(metrics.OutcomeSuccess, saved.Relationship)
	slog.Info("registration_submitted", "id", saved.ID, "relationship", saved.Relationship, "package", saved.SelectedPackage)

	if deps.Confirm != nil {
		deps.Confirm(ctx, saved)
	}
	return SubmitResult{Success: true, Record: saved, Message: MsgSubmitted}
}

func submitFailure(form registration.FormData, err error, m *metrics.Metrics) SubmitResult {
	m.Submission(metrics.OutcomeFailure, form.Relationship)
	slog.Error("registration_submit_failed", "relationship", form.Relationship, "error", err)
	return SubmitResult{Success: false, Message: submitFailureMessage(err), Err: err}
}

func submitFailureMessage(err error) string {
	switch {
	case errors.Is(err, registrationStore.ErrRejected):
		return MsgSubmitRejected
	case errors.Is(err, registrationStore.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return MsgSubmitUnavailable
	default:
		return MsgSubmitFailed
	}
}
