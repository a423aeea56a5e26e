package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"confreg/internal/adapters/email"
	web "confreg/internal/adapters/http"
	"confreg/internal/adapters/metrics"
	"confreg/internal/adapters/storage"
	auditStore "confreg/internal/adapters/storage/audit"
	"confreg/internal/adapters/storage/kv"
	registrationStore "confreg/internal/adapters/storage/registration"
	"confreg/internal/application/orchestrators"
	"confreg/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// shutdownTimeout bounds draining in-flight requests on SIGINT/SIGTERM.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if cfg.AdminPassword == config.DefaultAdminPassword {
		slog.Warn("default_admin_password", "hint", "set CONFREG_ADMIN_PASSWORD")
	}
	if cfg.CSRFKeyRandom {
		slog.Warn("random_csrf_key", "hint", "set CONFREG_CSRF_KEY so tokens survive restarts")
	}

	// Initialize database with WAL mode, foreign keys, and busy timeout
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := storage.MigrateDB(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	m := metrics.New()
	timedDB := storage.NewTimedDB(db, m, cfg.SlowQuery)

	registrations := registrationStore.NewSQLiteStore(timedDB)
	audits := auditStore.NewSQLiteStore(timedDB)

	local, closeKV, err := openKV(cfg, timedDB)
	if err != nil {
		return err
	}
	defer closeKV()

	hash, err := cfg.PasswordHash()
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	var sender email.Sender
	if cfg.ResendKey != "" {
		sender = email.NewResendSender(cfg.ResendKey, cfg.EmailFrom, cfg.EmailReplyTo)
		slog.Info("email_sender", "provider", "resend")
	} else {
		sender = email.NewNoopSender()
		if cfg.Production() {
			slog.Warn("email_sender", "provider", "noop", "hint", "CONFREG_RESEND_KEY is not set; confirmations are not delivered")
		} else {
			slog.Info("email_sender", "provider", "noop")
		}
	}

	dispatcher := orchestrators.NewAuditDispatcher(audits, m)

	mux := web.NewMux(web.Deps{
		Registrations: registrations,
		AuditLog:      audits,
		KV:            local,
		Auditor:       dispatcher,
		Metrics:       m,
		Confirmation: orchestrators.SendConfirmationDeps{
			Sender:  sender,
			From:    cfg.EmailFrom,
			ReplyTo: cfg.EmailReplyTo,
			Metrics: m,
		},
		PasswordHash:   hash,
		Location:       cfg.Location,
		CSRFKey:        cfg.CSRFKey,
		TrustedOrigins: cfg.TrustedOrigins,
		Production:     cfg.Production(),
		SlowRequest:    cfg.SlowRequest,
		Health: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting",
			"version", version,
			"addr", cfg.Addr,
			"env", cfg.Env,
			"kv_backend", cfg.KVBackend,
			"schema", storage.LatestSchemaVersion(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		slog.Info("server_stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server_shutdown_incomplete", "error", err)
	}

	// Flush background work before the database closes.
	web.Drain()
	dispatcher.Wait()
	web.Close()
	slog.Info("server_stopped")
	return nil
}

// openKV selects the client key-value backend.
func openKV(cfg config.Config, db storage.SQLDB) (kv.Store, func(), error) {
	switch cfg.KVBackend {
	case config.KVMemory:
		return kv.NewMemoryStore(cfg.KVTTL), func() {}, nil
	case config.KVRedis:
		rs := kv.NewRedis(kv.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.KVTTL,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				slog.Warn("redis_close_failed", "error", err)
			}
		}, nil
	default:
		return kv.NewSQLiteStore(db), func() {}, nil
	}
}
