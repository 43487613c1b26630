package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeySession
	ctxKeySessionToken
)

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func sessionFrom(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(ctxKeySession).(*models.Session)
	return sess
}

func sessionTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ctxKeySessionToken).(string)
	return token
}

// withRequestID attaches a correlation id to the context and mirrors it on
// the response. An inbound id is honored so callers can trace across hops.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(common.RequestIDHeaderName)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(common.RequestIDHeaderName, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// sessionToken pulls the token from the cookie or the header mirror.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(common.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(common.SessionHeaderName)
}

// withAuth resolves the session and rejects the request when it is missing
// or expired.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			s.writeError(r.Context(), w, common.ErrorUnauthorized)
			return
		}
		sess, err := s.sessions.Get(r.Context(), token)
		if err != nil {
			s.writeError(r.Context(), w, common.ErrorUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeySession, sess)
		ctx = context.WithValue(ctx, ctxKeySessionToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// withCSRF validates the anti-forgery header against the caller's session.
// Must run inside withAuth.
func (s *Server) withCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionTokenFrom(r.Context())
		if !s.guard.Validate(r.Context(), token, r.Header.Get(common.CSRFHeaderName)) {
			s.writeError(r.Context(), w, common.ErrorForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// apiLimited applies the general fixed-window limit keyed by client ip.
func (s *Server) apiLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(r.Context(), s.clientIP(r)+":api", s.cfg.APIRateLimit, s.cfg.APIRateWindow) {
			s.writeError(r.Context(), w, common.ErrorRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// authLimited applies the stricter limit reserved for authentication routes.
func (s *Server) authLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(r.Context(), s.clientIP(r)+":auth", s.cfg.AuthRateLimit, s.cfg.AuthRateWindow) {
			s.writeError(r.Context(), w, common.ErrorRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// clientIP keys the rate limiter. X-Forwarded-For is client-controlled, so
// it is honored (first hop only) solely when the deployment declares a
// trusted proxy in front.
func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxyHeader {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.Index(fwd, ","); i >= 0 {
				fwd = fwd[:i]
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
