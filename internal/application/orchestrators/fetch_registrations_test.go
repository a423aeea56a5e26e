package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"confreg/internal/adapters/metrics"
	"confreg/internal/domain/adminsession"
	"confreg/internal/domain/audit"
	"confreg/internal/domain/registration"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFixture struct {
	store   *mockRegistrationStore
	auditor *recordingAuditor
	clock   *clock
	deps    FetchRegistrationsDeps
}

func newFetchFixture(t *testing.T, authenticated bool) *fetchFixture {
	t.Helper()
	f := &fetchFixture{
		store:   &mockRegistrationStore{rows: []registration.Registration{{ID: "b"}, {ID: "a"}}},
		auditor: &recordingAuditor{},
		clock:   &clock{t: fixedTime},
	}
	local := newLocal(t)
	if authenticated {
		require.NoError(t, local.Set(context.Background(), adminsession.KeyAuth, adminsession.AuthenticatedValue))
	}
	f.deps = FetchRegistrationsDeps{
		Store:      f.store,
		Local:      local,
		Auditor:    f.auditor,
		Client:     Client{ID: "client-1", IPAddress: "10.0.0.7", UserAgent: "test"},
		Now:        f.clock.Now,
		GenerateID: fixedID,
	}
	return f
}

// TestExecuteFetchRegistrations_Success verifies rows, stamp and audit on success.
func TestExecuteFetchRegistrations_Success(t *testing.T) {
	f := newFetchFixture(t, true)

	res := ExecuteFetchRegistrations(context.Background(), f.deps)

	require.True(t, res.Success)
	assert.Equal(t, []string{"b", "a"}, []string{res.Registrations[0].ID, res.Registrations[1].ID})

	stamp, ok, err := f.deps.Local.Get(context.Background(), adminsession.KeyLastFetch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, adminsession.FormatMillis(fixedTime), stamp)

	events := f.auditor.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionDataFetch, events[0].Action)
	assert.True(t, events[0].Success)
	assert.Empty(t, events[0].Details)
	assert.Equal(t, "10.0.0.7", events[0].IPAddress)
}

// TestExecuteFetchRegistrations_Unauthorized verifies the admin flag is checked first.
func TestExecuteFetchRegistrations_Unauthorized(t *testing.T) {
	f := newFetchFixture(t, false)

	res := ExecuteFetchRegistrations(context.Background(), f.deps)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUnauthorized)
	assert.Equal(t, MsgUnauthorized, res.Message)
	assert.Zero(t, f.store.lists, "backend must not be contacted")

	_, ok, _ := f.deps.Local.Get(context.Background(), adminsession.KeyLastFetch)
	assert.False(t, ok, "unauthorized fetch must not stamp last fetch")

	events := f.auditor.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionDataFetchFailed, events[0].Action)
	assert.False(t, events[0].Success)
	assert.Equal(t, MsgUnauthorized, events[0].Details["error"])
}

// TestExecuteFetchRegistrations_RateLimit verifies the 500ms interval at 400ms and 600ms.
func TestExecuteFetchRegistrations_RateLimit(t *testing.T) {
	f := newFetchFixture(t, true)
	ctx := context.Background()

	require.True(t, ExecuteFetchRegistrations(ctx, f.deps).Success)

	f.clock.Advance(400 * time.Millisecond)
	limited := ExecuteFetchRegistrations(ctx, f.deps)
	assert.False(t, limited.Success)
	assert.ErrorIs(t, limited.Err, ErrRateLimited)
	assert.Equal(t, MsgRateLimited, limited.Message)
	assert.Equal(t, 1, f.store.lists)

	// The rejected call did not move the stamp, so 600ms after the first call succeeds.
	f.clock.Advance(200 * time.Millisecond)
	assert.True(t, ExecuteFetchRegistrations(ctx, f.deps).Success)
	assert.Equal(t, 2, f.store.lists)

	actions := []audit.Action{}
	for _, e := range f.auditor.Events() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionDataFetch, audit.ActionDataFetchFailed, audit.ActionDataFetch}, actions)
}

// TestExecuteFetchRegistrations_BackendError verifies select failures are wrapped.
func TestExecuteFetchRegistrations_BackendError(t *testing.T) {
	f := newFetchFixture(t, true)
	f.store.listErr = errors.New("connection reset")
	m := metrics.New()
	f.deps.Metrics = m

	res := ExecuteFetchRegistrations(context.Background(), f.deps)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrFetchFailed)
	assert.Equal(t, MsgFetchFailed, res.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues(metrics.OutcomeFailure)))
}

// TestExecuteFetchRegistrations_LocalStoreError verifies a broken KV store fails the fetch.
func TestExecuteFetchRegistrations_LocalStoreError(t *testing.T) {
	f := newFetchFixture(t, true)
	f.deps.Local = failingLocal{}

	res := ExecuteFetchRegistrations(context.Background(), f.deps)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrFetchFailed)
	assert.Zero(t, f.store.lists)
}

// TestExecuteFetchRegistrations_AuditIndependent verifies audit failure leaves the result intact.
func TestExecuteFetchRegistrations_AuditIndependent(t *testing.T) {
	f := newFetchFixture(t, true)
	dispatcher := NewAuditDispatcher(panickingAuditStore{}, nil)
	f.deps.Auditor = dispatcher

	res := ExecuteFetchRegistrations(context.Background(), f.deps)
	dispatcher.Wait()

	assert.True(t, res.Success)
	assert.Len(t, res.Registrations, 2)
}
