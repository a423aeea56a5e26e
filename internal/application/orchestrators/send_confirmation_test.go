package orchestrators

import (
	"context"
	"errors"
	"testing"

	"confreg/internal/adapters/email"
	"confreg/internal/adapters/metrics"
	"confreg/internal/domain/registration"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type failingSender struct{ calls int }

func (s *failingSender) Send(context.Context, email.SendRequest) (email.SendResult, error) {
	s.calls++
	return email.SendResult{}, errors.New("provider unavailable")
}

func savedSponsor() registration.Registration {
	r := registration.FromForm(sponsorForm(), fixedTime)
	r.ID = "reg-1"
	return r
}

// TestExecuteSendConfirmation_SkipsClients verifies clients never get an email.
func TestExecuteSendConfirmation_SkipsClients(t *testing.T) {
	sender := email.NewNoopSender()
	r := savedSponsor()
	r.Relationship = registration.RelationshipProspectiveClient

	ExecuteSendConfirmation(context.Background(), r, SendConfirmationDeps{Sender: sender})

	assert.Empty(t, sender.Sent())
}

// TestExecuteSendConfirmation_FailureSwallowed verifies send errors are counted, not returned.
func TestExecuteSendConfirmation_FailureSwallowed(t *testing.T) {
	sender := &failingSender{}
	m := metrics.New()

	ExecuteSendConfirmation(context.Background(), savedSponsor(), SendConfirmationDeps{Sender: sender, Metrics: m})

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailFailures))
}

// TestExecuteSendConfirmation_NilSender verifies a missing sender is a no-op.
func TestExecuteSendConfirmation_NilSender(t *testing.T) {
	assert.NotPanics(t, func() {
		ExecuteSendConfirmation(context.Background(), savedSponsor(), SendConfirmationDeps{})
	})
}
