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

	"golang.org/x/crypto/bcrypt"
)

// LoginDelay is the fixed pause applied to every login attempt.
const LoginDelay = time.Second

// MsgInvalidPassword is shown for any rejected login.
const MsgInvalidPassword = "Invalid password. Please try again."

var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminAuthDeps holds dependencies for the admin auth gate.
type AdminAuthDeps struct {
	Local        kv.Local
	PasswordHash []byte
	Auditor      Auditor
	Client       Client
	Now          func() time.Time
	GenerateID   func() string
	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Metrics
}

// AdminLoginInput carries the submitted password.
type AdminLoginInput struct {
	Password string
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	Success bool
	Session adminsession.Session
	Message string
	Err     error
}

// SleepContext blocks for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteAdminLogin checks the password after LoginDelay and stores the session on a match.
// PRE: deps.PasswordHash is a bcrypt hash
// POST: on success adminAuth and adminAuthTime are set; every attempt is audited
func ExecuteAdminLogin(ctx context.Context, input AdminLoginInput, deps AdminAuthDeps) LoginResult {
	sleep := deps.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	if err := sleep(ctx, LoginDelay); err != nil {
		return LoginResult{Message: MsgInvalidPassword, Err: err}
	}

	if bcrypt.CompareHashAndPassword(deps.PasswordHash, []byte(input.Password)) != nil {
		deps.Metrics.Auth(metrics.OutcomeFailure)
		slog.Warn("auth_event", "event", "login_failed", "client_id", deps.Client.ID, "ip", deps.Client.IPAddress)
		recordAuth(ctx, deps, audit.ActionAdminLoginFailed, false)
		return LoginResult{Message: MsgInvalidPassword, Err: ErrInvalidCredentials}
	}

	session := adminsession.New(deps.Now())
	auth, since := session.Encode()
	if err := deps.Local.Set(ctx, adminsession.KeyAuth, auth); err != nil {
		return loginStoreFailure(err)
	}
	if err := deps.Local.Set(ctx, adminsession.KeyAuthTime, since); err != nil {
		return loginStoreFailure(err)
	}

	deps.Metrics.Auth(metrics.OutcomeSuccess)
	slog.Info("auth_event", "event", "login_success", "client_id", deps.Client.ID, "ip", deps.Client.IPAddress)
	recordAuth(ctx, deps, audit.ActionAdminLogin, true)
	return LoginResult{Success: true, Session: session}
}

func loginStoreFailure(err error) LoginResult {
	slog.Error("auth_event", "event", "session_store_failed", "error", err)
	return LoginResult{Message: MsgInvalidPassword, Err: fmt.Errorf("store session: %w", err)}
}

// ExecuteCheckAdminSession reports whether the client holds a valid session.
// An expired or malformed session is logged out as a side effect.
// POST: when false is returned, adminAuth and adminAuthTime are absent
func ExecuteCheckAdminSession(ctx context.Context, deps AdminAuthDeps) (adminsession.Session, error) {
	auth, hasAuth, err := deps.Local.Get(ctx, adminsession.KeyAuth)
	if err != nil {
		return adminsession.Session{}, err
	}
	since, hasSince, err := deps.Local.Get(ctx, adminsession.KeyAuthTime)
	if err != nil {
		return adminsession.Session{}, err
	}

	session := adminsession.Decode(auth, since)
	if session.Valid(deps.Now()) {
		return session, nil
	}
	if hasAuth || hasSince {
		slog.Info("auth_event", "event", "session_expired", "client_id", deps.Client.ID)
		if err := clearSession(ctx, deps.Local); err != nil {
			return adminsession.Session{}, err
		}
	}
	return adminsession.Session{}, nil
}

// ExecuteAdminLogout removes the stored session.
// POST: adminAuth and adminAuthTime are absent; lastAdminFetch is kept
func ExecuteAdminLogout(ctx context.Context, deps AdminAuthDeps) error {
	if err := clearSession(ctx, deps.Local); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "logout", "client_id", deps.Client.ID)
	recordAuth(ctx, deps, audit.ActionAdminLogout, true)
	return nil
}

func clearSession(ctx context.Context, local kv.Local) error {
	if err := local.Remove(ctx, adminsession.KeyAuth, adminsession.KeyAuthTime); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func recordAuth(ctx context.Context, deps AdminAuthDeps, action audit.Action, success bool) {
	if deps.Auditor == nil {
		return
	}
	id := ""
	if deps.GenerateID != nil {
		id = deps.GenerateID()
	}
	event := audit.NewEvent(id, deps.Now(), action, success).
		WithClient(deps.Client.ID, deps.Client.IPAddress, deps.Client.UserAgent)
	deps.Auditor.Record(ctx, event)
}
