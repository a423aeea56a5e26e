package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"confreg/internal/adapters/http/middleware"
	"confreg/internal/adapters/metrics"
	"confreg/internal/adapters/spreadsheet"
	auditStore "confreg/internal/adapters/storage/audit"
	"confreg/internal/adapters/storage/kv"
	registrationStore "confreg/internal/adapters/storage/registration"
	"confreg/internal/application/debounce"
	"confreg/internal/application/orchestrators"
)

// Deps holds every collaborator of the HTTP layer.
type Deps struct {
	Registrations registrationStore.Store
	AuditLog      auditStore.Store
	KV            kv.Store
	Auditor       orchestrators.Auditor
	Metrics       *metrics.Metrics
	Spreadsheet   spreadsheet.Writer
	Confirmation  orchestrators.SendConfirmationDeps
	// PasswordHash is the bcrypt hash of the admin password.
	PasswordHash []byte
	// Location renders and exports dates in the organiser's zone.
	Location       *time.Location
	CSRFKey        []byte
	TrustedOrigins []string
	Production     bool
	SlowRequest    time.Duration
	// Health reports backend readiness for /healthz.
	Health func(ctx context.Context) error

	// Test seams. Zero values use the real clock, sleep and scheduler.
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	NewScheduler func() debounce.Scheduler
}

// Global dependencies (set by NewMux)
var app Deps

// Global per-client controllers (set by NewMux)
var clients *clientRegistry

// background tracks confirmation emails still being sent.
var background sync.WaitGroup

// LoginAttemptsPerMinute controls the per-IP login rate limit. Tests can change this.
var LoginAttemptsPerMinute = 10

// ControllerIdleTTL is how long an idle browser keeps its wizard and dashboard in memory.
var ControllerIdleTTL = 30 * time.Minute

// NewMux wires HTTP handlers for the app.
// PRE: d.Registrations, d.KV, d.PasswordHash and d.CSRFKey are set
func NewMux(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = orchestrators.SleepContext
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.NewScheduler == nil {
		d.NewScheduler = func() debounce.Scheduler { return debounce.NewRealScheduler() }
	}
	if d.Spreadsheet == nil {
		d.Spreadsheet = spreadsheet.NewXLSXWriter()
	}
	app = d
	clients = newClientRegistry(ControllerIdleTTL)
	middleware.SecureCookies = d.Production
	pages = mustParsePages()

	mux := http.NewServeMux()
	registerRoutes(mux)

	limiter := middleware.NewRateLimiter(LoginAttemptsPerMinute, time.Minute)

	// Apply middleware: Timing -> RateLimit -> ClientID -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(d.CSRFKey, middleware.CSRFOptions{Secure: d.Production, TrustedOrigins: d.TrustedOrigins}),
		middleware.ClientID,
		middleware.RateLimit(limiter, isLoginAttempt),
		middleware.Timing(d.Metrics, d.SlowRequest, routeLabel),
	)
}

// Drain blocks until background confirmation emails have finished.
func Drain() {
	background.Wait()
}

// Close drops every cached controller and cancels pending validation.
func Close() {
	if clients != nil {
		clients.flush()
	}
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/register", http.StatusSeeOther)
	})

	mux.HandleFunc("GET /register", handleRegister)
	mux.HandleFunc("GET /register/state", handleRegisterState)
	mux.HandleFunc("POST /register/field", handleRegisterField)
	mux.HandleFunc("POST /register/preference", handleRegisterPreference)
	mux.HandleFunc("POST /register/next", handleRegisterNext)
	mux.HandleFunc("POST /register/back", handleRegisterBack)
	mux.HandleFunc("POST /register/submit", handleRegisterSubmit)
	mux.HandleFunc("POST /register/close", handleRegisterClose)

	mux.HandleFunc("GET /admin/login", handleAdminLoginForm)
	mux.HandleFunc("POST /admin/login", handleAdminLogin)
	mux.HandleFunc("POST /admin/logout", handleAdminLogout)
	mux.HandleFunc("GET /admin", handleAdminDashboard)
	mux.HandleFunc("POST /admin/sort", handleAdminSort)
	mux.HandleFunc("POST /admin/retry", handleAdminRetry)
	mux.HandleFunc("GET /admin/export", handleAdminExport)
	mux.HandleFunc("GET /admin/audit", handleAdminAuditTrail)

	mux.Handle("GET /metrics", app.Metrics.Handler())
	mux.HandleFunc("GET /healthz", handleHealth)
}

// knownRoutes bounds the route label of the request histogram.
var knownRoutes = map[string]bool{
	"/": true, "/register": true, "/register/state": true, "/register/field": true,
	"/register/preference": true, "/register/next": true, "/register/back": true,
	"/register/submit": true, "/register/close": true,
	"/admin": true, "/admin/login": true, "/admin/logout": true, "/admin/sort": true,
	"/admin/retry": true, "/admin/export": true, "/admin/audit": true, "/healthz": true,
}

func routeLabel(r *http.Request) string {
	if knownRoutes[r.URL.Path] {
		return r.URL.Path
	}
	return "other"
}

func isLoginAttempt(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.TrimSuffix(r.URL.Path, "/") == "/admin/login"
}

// handleHealth handles GET /healthz
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if app.Health != nil {
		if err := app.Health(r.Context()); err != nil {
			slog.Warn("health_check_failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
