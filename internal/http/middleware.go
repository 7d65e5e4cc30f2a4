package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"ggecl/auth-sessions/internal/model"
	"ggecl/auth-sessions/internal/session"
)

// Identity is what the middleware attaches to the request context: the
// verified token claims, plus the stored permission set for admins.
type Identity struct {
	ID          string
	Role        model.Role
	AdminLevel  string
	Permissions []string
}

type identityKey struct{}

func IdentityFromContext(ctx context.Context) *Identity {
	value := ctx.Value(identityKey{})
	identity, _ := value.(*Identity)
	return identity
}

// authMiddleware verifies the bearer access token and injects the
// principal identity. Admin requests additionally carry the stored
// permission set so downstream checks need no second store read.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r.Header.Get("Authorization"))
		if bearer == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		id, role, err := s.sessions.VerifyAccess(bearer)
		if err != nil {
			if errors.Is(err, session.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token_expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "token_invalid")
			return
		}

		identity := &Identity{ID: id, Role: role}
		if role == model.RoleAdmin {
			principal, err := s.sessions.LoadPrincipal(r.Context(), role, id)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "token_invalid")
				return
			}
			identity.AdminLevel = principal.AdminLevel
			identity.Permissions = principal.Permissions
		}

		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission is the strict variant: it re-reads the stored
// record and rejects unless the stored role matches the expected
// elevated role and the named permission is present. Superadmins skip
// the permission check.
func (s *Server) requirePermission(role model.Role, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil || identity.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			principal, err := s.sessions.LoadPrincipal(r.Context(), identity.Role, identity.ID)
			if err != nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if principal.Role != role || !principal.HasPermission(perm) {
				writeError(w, http.StatusForbidden, "missing_permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
