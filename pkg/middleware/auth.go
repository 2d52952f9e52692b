// Package middleware provides HTTP middleware for stagehand.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/auth"
)

// Key type for context values
type contextKey string

// Context keys
const (
	AccountIDKey contextKey = "account_id"
)

// TokenValidator validates a bearer token and returns an account ID. Both
// the JWT service and the API-token lookup satisfy it.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware provides authentication middleware for HTTP handlers
type AuthMiddleware struct {
	accountService auth.AccountService
	jwtValidator   TokenValidator
	rateLimiter    *RateLimiter
}

// NewAuthMiddleware creates a new authentication middleware. jwtValidator
// may be nil when only API tokens are in use.
func NewAuthMiddleware(accountService auth.AccountService, jwtValidator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		accountService: accountService,
		jwtValidator:   jwtValidator,
		rateLimiter:    NewRateLimiter(100, time.Minute), // 100 attempts per minute
	}
}

// Authenticate is middleware that authenticates requests
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		clientIP := r.RemoteAddr
		if m.rateLimiter.IsLimited(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		var accountID string
		var err error

		if strings.HasPrefix(authHeader, "Bearer ") {
			// Bearer tokens are JWTs or API tokens
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if m.jwtValidator != nil {
				accountID, err = m.jwtValidator.ValidateToken(token)
			}
			if accountID == "" {
				accountID, err = m.accountService.ValidateToken(token)
			}
		} else if strings.HasPrefix(authHeader, "Basic ") {
			username, password, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}
			accountID, err = m.accountService.Authenticate(username, password)
		} else {
			http.Error(w, "Unsupported authentication method", http.StatusUnauthorized)
			return
		}

		if err != nil || accountID == "" {
			m.rateLimiter.Record(clientIP)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountID retrieves the account ID from the request context
func GetAccountID(r *http.Request) (string, bool) {
	accountID, ok := r.Context().Value(AccountIDKey).(string)
	return accountID, ok
}

// CORS adds permissive CORS headers for browser clients
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiter implements a simple rate limiting mechanism
type RateLimiter struct {
	attempts   map[string][]time.Time
	limit      int
	window     time.Duration
	mu         sync.Mutex
	cleanupInt time.Duration
	lastClean  time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:   make(map[string][]time.Time),
		limit:      limit,
		window:     window,
		cleanupInt: time.Minute * 5,
		lastClean:  time.Now(),
	}
}

// IsLimited checks if a client is rate limited
func (r *RateLimiter) IsLimited(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastClean) > r.cleanupInt {
		r.cleanup()
		r.lastClean = time.Now()
	}

	attempts := r.attempts[clientID]
	if len(attempts) == 0 {
		return false
	}

	cutoff := time.Now().Add(-r.window)
	count := 0
	for _, t := range attempts {
		if t.After(cutoff) {
			count++
		}
	}

	return count >= r.limit
}

// Record records an authentication attempt
func (r *RateLimiter) Record(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[clientID] = append(r.attempts[clientID], time.Now())
}

// cleanup removes old entries
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-r.window)
	for clientID, attempts := range r.attempts {
		var valid []time.Time
		for _, t := range attempts {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) > 0 {
			r.attempts[clientID] = valid
		} else {
			delete(r.attempts, clientID)
		}
	}
}
