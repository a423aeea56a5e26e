package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const clientContextKey contextKey = "client"

// ClientCookieName identifies the browser across requests.
const ClientCookieName = "confreg_client"

// clientCookieMaxAge keeps a browser's id for a year.
const clientCookieMaxAge = 365 * 24 * 60 * 60

// SecureCookies controls the Secure flag on the client cookie. Set it in production.
var SecureCookies = false

// Client identifies the browser behind a request.
type Client struct {
	ID        string
	IPAddress string
	UserAgent string
}

// ClientID returns middleware that assigns every browser a stable id cookie.
// A missing or malformed cookie is replaced with a fresh uuid.
// POST: ClientFromContext succeeds for downstream handlers
func ClientID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(ClientCookieName); err == nil {
			if parsed, err := uuid.Parse(cookie.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientCookieName,
				Value:    id,
				HttpOnly: true,
				Secure:   SecureCookies,
				SameSite: http.SameSiteLaxMode,
				Path:     "/",
				MaxAge:   clientCookieMaxAge,
			})
		}

		client := Client{ID: id, IPAddress: remoteIP(r), UserAgent: r.UserAgent()}
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
	})
}

// WithClient returns a context carrying c.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientContextKey, c)
}

// ClientFromContext retrieves the client stored by ClientID.
func ClientFromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientContextKey).(Client)
	return c, ok
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
