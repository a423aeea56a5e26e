package web

import (
	"context"
	"sync"
	"time"

	"confreg/internal/adapters/http/middleware"
	"confreg/internal/adapters/storage/kv"
	"confreg/internal/application/dashboard"
	"confreg/internal/application/orchestrators"
	"confreg/internal/application/wizard"
	"confreg/internal/domain/registration"

	"github.com/patrickmn/go-cache"
)

// clientRegistry keeps one wizard and one dashboard per browser.
// Entries expire after ttl without use; their state lives on in the KV store.
type clientRegistry struct {
	mu         sync.Mutex
	wizards    *cache.Cache
	dashboards *cache.Cache
}

func newClientRegistry(ttl time.Duration) *clientRegistry {
	wizards := cache.New(ttl, ttl/2)
	wizards.OnEvicted(func(_ string, v any) {
		v.(*wizard.Controller).Close()
	})
	return &clientRegistry{
		wizards:    wizards,
		dashboards: cache.New(ttl, ttl/2),
	}
}

// wizard returns the open wizard of the client, creating and opening it on first use.
func (cr *clientRegistry) wizard(ctx context.Context, client middleware.Client) *wizard.Controller {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if v, ok := cr.wizards.Get(client.ID); ok {
		wc := v.(*wizard.Controller)
		cr.wizards.SetDefault(client.ID, wc)
		return wc
	}

	wc := wizard.New(wizard.Deps{
		Local:     kv.Bind(app.KV, client.ID),
		Scheduler: app.NewScheduler(),
		Submit:    submitRegistration,
	})
	wc.Open(ctx)
	cr.wizards.SetDefault(client.ID, wc)
	return wc
}

// dashboard returns the dashboard of the client, creating it on first use.
func (cr *clientRegistry) dashboard(client middleware.Client) *dashboard.Controller {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if v, ok := cr.dashboards.Get(client.ID); ok {
		dc := v.(*dashboard.Controller)
		cr.dashboards.SetDefault(client.ID, dc)
		return dc
	}

	local := kv.Bind(app.KV, client.ID)
	dc := dashboard.New(dashboard.Deps{
		Fetch: func(ctx context.Context) orchestrators.FetchResult {
			return orchestrators.ExecuteFetchRegistrations(ctx, orchestrators.FetchRegistrationsDeps{
				Store:      app.Registrations,
				Local:      local,
				Auditor:    app.Auditor,
				Client:     auditClient(ctx, client),
				Now:        app.Now,
				GenerateID: generateID,
				Metrics:    app.Metrics,
			})
		},
		Local:      local,
		Writer:     app.Spreadsheet,
		Auditor:    app.Auditor,
		Client:     toAuditClient(client),
		Now:        app.Now,
		GenerateID: generateID,
		Location:   app.Location,
		Metrics:    app.Metrics,
	})
	cr.dashboards.SetDefault(client.ID, dc)
	return dc
}

// dropDashboard forgets the fetched rows of a client, e.g. on logout.
func (cr *clientRegistry) dropDashboard(clientID string) {
	cr.dashboards.Delete(clientID)
}

// flush closes every wizard and forgets every dashboard.
func (cr *clientRegistry) flush() {
	for id := range cr.wizards.Items() {
		cr.wizards.Delete(id)
	}
	cr.dashboards.Flush()
}

// submitRegistration hands a validated form to the submission adapter.
// The confirmation email is sent in the background so the response is not delayed.
func submitRegistration(ctx context.Context, form registration.FormData) orchestrators.SubmitResult {
	return orchestrators.ExecuteSubmitRegistration(ctx, orchestrators.SubmitRegistrationInput{Form: form}, orchestrators.SubmitRegistrationDeps{
		Store:   app.Registrations,
		Now:     app.Now,
		Metrics: app.Metrics,
		Confirm: sendConfirmationAsync,
	})
}

// confirmationTimeout bounds one background confirmation email.
const confirmationTimeout = 30 * time.Second

func sendConfirmationAsync(ctx context.Context, r registration.Registration) {
	deps := app.Confirmation
	if deps.Sender == nil {
		return
	}
	background.Add(1)
	go func() {
		defer background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmationTimeout)
		defer cancel()
		orchestrators.ExecuteSendConfirmation(ctx, r, deps)
	}()
}

func toAuditClient(c middleware.Client) orchestrators.Client {
	return orchestrators.Client{ID: c.ID, IPAddress: c.IPAddress, UserAgent: c.UserAgent}
}

// auditClient prefers the client of the current request over the one captured at creation.
func auditClient(ctx context.Context, fallback middleware.Client) orchestrators.Client {
	if c, ok := middleware.ClientFromContext(ctx); ok {
		return toAuditClient(c)
	}
	return toAuditClient(fallback)
}
