// Package config loads service settings from CONFREG_* environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// KV backends.
const (
	KVMemory = "memory"
	KVSQLite = "sqlite"
	KVRedis  = "redis"
)

// DefaultAdminPassword is only accepted outside production.
const DefaultAdminPassword = "admin2025"

var (
	ErrMissingAdminPassword = errors.New("CONFREG_ADMIN_PASSWORD is required in production")
	ErrMissingCSRFKey       = errors.New("CONFREG_CSRF_KEY is required in production")
	ErrInvalidCSRFKey       = errors.New("CONFREG_CSRF_KEY must be 64 hex characters (32 bytes)")
	ErrUnknownKVBackend     = errors.New("CONFREG_KV_BACKEND must be memory, sqlite or redis")
	ErrMissingRedisAddr     = errors.New("CONFREG_REDIS_ADDR is required for the redis backend")
	ErrInvalidValue         = errors.New("invalid configuration value")
)

// Config holds every runtime setting.
type Config struct {
	Env            string
	Addr           string
	DBPath         string
	AdminPassword  string
	CSRFKey        []byte
	CSRFKeyRandom  bool
	KVBackend      string
	KVTTL          time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ResendKey      string
	EmailFrom      string
	EmailReplyTo   string
	LogLevel       slog.Level
	SlowQuery      time.Duration
	SlowRequest    time.Duration
	TrustedOrigins []string
	Location       *time.Location
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// FromEnv loads an optional .env file, then reads the process environment.
// Variables already set are never overridden by the file.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Load(os.Getenv)
}

// Load builds a Config from getenv and validates it.
// PRE: getenv is non-nil
// POST: returned Config passes Validate
func Load(getenv func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		Env:           get("CONFREG_ENV", EnvDevelopment),
		Addr:          get("CONFREG_ADDR", ":8080"),
		DBPath:        get("CONFREG_DB_PATH", "confreg.db"),
		AdminPassword: getenv("CONFREG_ADMIN_PASSWORD"),
		KVBackend:     get("CONFREG_KV_BACKEND", KVSQLite),
		RedisAddr:     get("CONFREG_REDIS_ADDR", ""),
		RedisPassword: getenv("CONFREG_REDIS_PASSWORD"),
		ResendKey:     get("CONFREG_RESEND_KEY", ""),
		EmailFrom:     get("CONFREG_EMAIL_FROM", "Credentia Conference <events@credentia.example>"),
		EmailReplyTo:  get("CONFREG_EMAIL_REPLY_TO", ""),
	}

	var err error
	if cfg.RedisDB, err = intValue("CONFREG_REDIS_DB", get("CONFREG_REDIS_DB", "0")); err != nil {
		return Config{}, err
	}
	if cfg.SlowQuery, err = millis("CONFREG_SLOW_QUERY_MS", get("CONFREG_SLOW_QUERY_MS", "50")); err != nil {
		return Config{}, err
	}
	if cfg.SlowRequest, err = millis("CONFREG_SLOW_REQUEST_MS", get("CONFREG_SLOW_REQUEST_MS", "200")); err != nil {
		return Config{}, err
	}
	if cfg.KVTTL, err = time.ParseDuration(get("CONFREG_KV_TTL", "720h")); err != nil || cfg.KVTTL <= 0 {
		return Config{}, fmt.Errorf("%w: CONFREG_KV_TTL", ErrInvalidValue)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("CONFREG_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("%w: CONFREG_LOG_LEVEL: %v", ErrInvalidValue, err)
	}
	if cfg.Location, err = time.LoadLocation(get("CONFREG_TIMEZONE", "UTC")); err != nil {
		return Config{}, fmt.Errorf("%w: CONFREG_TIMEZONE: %v", ErrInvalidValue, err)
	}
	for _, o := range strings.Split(get("CONFREG_TRUSTED_ORIGINS", "localhost:8080,127.0.0.1:8080"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.TrustedOrigins = append(cfg.TrustedOrigins, o)
		}
	}

	if keyHex := get("CONFREG_CSRF_KEY", ""); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return Config{}, ErrInvalidCSRFKey
		}
		cfg.CSRFKey = key
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.AdminPassword == "" {
		cfg.AdminPassword = DefaultAdminPassword
	}
	if cfg.CSRFKey == nil {
		cfg.CSRFKey = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, cfg.CSRFKey); err != nil {
			return Config{}, fmt.Errorf("generate CSRF key: %w", err)
		}
		cfg.CSRFKeyRandom = true
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("%w: CONFREG_ENV %q", ErrInvalidValue, c.Env)
	}
	if c.Production() && c.AdminPassword == "" {
		return ErrMissingAdminPassword
	}
	if c.Production() && len(c.CSRFKey) == 0 {
		return ErrMissingCSRFKey
	}
	if !slices.Contains([]string{KVMemory, KVSQLite, KVRedis}, c.KVBackend) {
		return ErrUnknownKVBackend
	}
	if c.KVBackend == KVRedis && c.RedisAddr == "" {
		return ErrMissingRedisAddr
	}
	return nil
}

// PasswordHash hashes the admin password with bcrypt.
func (c Config) PasswordHash() ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(c.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return hash, nil
}

// NewLogger returns a JSON logger in production and a text logger otherwise.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.Production() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func intValue(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
	return n, nil
}

func millis(key, raw string) (time.Duration, error) {
	n, err := intValue(key, raw)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidValue, key)
	}
	return time.Duration(n) * time.Millisecond, nil
}
