package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"confreg/internal/adapters/metrics"
	"confreg/internal/adapters/storage/kv"
	"confreg/internal/domain/adminsession"
	"confreg/internal/domain/audit"
	"confreg/internal/domain/registration"
)

// RegistrationStoreForFetch defines the store interface needed by FetchRegistrations.
type RegistrationStoreForFetch interface {
	List(ctx context.Context) ([]registration.Registration, error)
}

// Client identifies the browser behind an admin request for the audit log.
type Client struct {
	ID        string
	IPAddress string
	UserAgent string
}

// FetchRegistrationsDeps holds dependencies for FetchRegistrations.
type FetchRegistrationsDeps struct {
	Store      RegistrationStoreForFetch
	Local      kv.Local
	Auditor    Auditor
	Client     Client
	Now        func() time.Time
	GenerateID func() string
	Metrics    *metrics.Metrics
}

// FetchResult is the uniform outcome of a registration fetch.
type FetchResult struct {
	Success       bool
	Registrations []registration.Registration
	Message       string
	Err           error
}

// Fetch failure messages.
const (
	MsgUnauthorized = "Unauthorized access. Please login as admin."
	MsgRateLimited  = "Please wait before fetching data again."
	MsgFetchFailed  = "Failed to load registrations."
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrFetchFailed  = errors.New("fetch registrations failed")
)

// ExecuteFetchRegistrations performs a guarded read of every registration.
// Checks run in order: admin flag, fetch interval, then the backend select.
// The last-fetch stamp is written only when the interval check passes.
// PRE: deps.Local is scoped to the requesting client
// POST: exactly one audit event dispatched, data_fetch on success, data_fetch_failed otherwise
func ExecuteFetchRegistrations(ctx context.Context, deps FetchRegistrationsDeps) FetchResult {
	result := fetchRegistrations(ctx, deps)

	id := ""
	if deps.GenerateID != nil {
		id = deps.GenerateID()
	}
	var event audit.Event
	if result.Success {
		event = audit.NewEvent(id, deps.Now(), audit.ActionDataFetch, true)
		deps.Metrics.Fetch(metrics.OutcomeSuccess)
		slog.Info("admin_fetch", "client_id", deps.Client.ID, "count", len(result.Registrations))
	} else {
		event = audit.NewEvent(id, deps.Now(), audit.ActionDataFetchFailed, false).WithDetail("error", result.Message)
		deps.Metrics.Fetch(fetchOutcome(result.Err))
		slog.Warn("admin_fetch_denied", "client_id", deps.Client.ID, "error", result.Err)
	}
	if deps.Auditor != nil {
		deps.Auditor.Record(ctx, event.WithClient(deps.Client.ID, deps.Client.IPAddress, deps.Client.UserAgent))
	}
	return result
}

func fetchRegistrations(ctx context.Context, deps FetchRegistrationsDeps) FetchResult {
	flag, _, err := deps.Local.Get(ctx, adminsession.KeyAuth)
	if err != nil {
		return fetchFailure(fmt.Errorf("%w: read session: %v", ErrFetchFailed, err))
	}
	if flag != adminsession.AuthenticatedValue {
		return FetchResult{Message: MsgUnauthorized, Err: ErrUnauthorized}
	}

	now := deps.Now()
	raw, ok, err := deps.Local.Get(ctx, adminsession.KeyLastFetch)
	if err != nil {
		return fetchFailure(fmt.Errorf("%w: read last fetch: %v", ErrFetchFailed, err))
	}
	var last time.Time
	if ok {
		last, _ = adminsession.ParseMillis(raw)
	}
	if !adminsession.FetchAllowed(last, now) {
		return FetchResult{Message: MsgRateLimited, Err: ErrRateLimited}
	}
	if err := deps.Local.Set(ctx, adminsession.KeyLastFetch, adminsession.FormatMillis(now)); err != nil {
		return fetchFailure(fmt.Errorf("%w: write last fetch: %v", ErrFetchFailed, err))
	}

	rows, err := deps.Store.List(ctx)
	if err != nil {
		return fetchFailure(fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}
	return FetchResult{Success: true, Registrations: rows}
}

func fetchFailure(err error) FetchResult {
	slog.Error("admin_fetch_failed", "error", err)
	return FetchResult{Message: MsgFetchFailed, Err: err}
}

func fetchOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return metrics.OutcomeDenied
	case errors.Is(err, ErrRateLimited):
		return metrics.OutcomeLimited
	default:
		return metrics.OutcomeFailure
	}
}
