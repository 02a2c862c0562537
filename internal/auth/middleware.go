package auth

import (
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

// Skipper reports whether a request bypasses authentication entirely.
type Skipper func(r *http.Request) bool

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	Config  Config
	Skipper Skipper
}

// NewMiddleware builds the service middleware. Health checks and the
// upstream webhook callback are exempt; the webhook carries its own verify
// token instead of a JWT.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{
		Config: cfg,
		Skipper: func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/v1/webhooks/upstream"
		},
	}
}

// Wrap authenticates every request before passing it to next, attaching the
// verified claims to the request context.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err == nil {
			var claims *Claims
			if claims, err = Parse(token, m.Config); err == nil {
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
				return
			}
		}
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), nil
}
