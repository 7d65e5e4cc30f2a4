package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ggecl/auth-sessions/internal/cache"
	"ggecl/auth-sessions/internal/crypto"
	"ggecl/auth-sessions/internal/metrics"
	"ggecl/auth-sessions/internal/model"
	"ggecl/auth-sessions/internal/repository"
	"ggecl/auth-sessions/internal/token"
)

var (
	// ErrTokenExpired tells the client to log in again.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers bad signatures and unparseable tokens.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrPrincipalNotFound covers both missing records and refresh
	// tokens that no longer match the stored value.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrInvalidCredentials is the single answer to every password
	// login failure, including external-identity principals that have
	// no password at all.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const verificationTokenTTL = 24 * time.Hour

// Service implements issuance, the refresh rotation protocol, session
// lookup and logout. Store and cache handles are injected, never
// ambient.
type Service struct {
	codec  *token.Codec
	stores repository.Resolver
	cache  *cache.SessionCache
	logger *slog.Logger
}

func NewService(codec *token.Codec, stores repository.Resolver, sessionCache *cache.SessionCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{codec: codec, stores: stores, cache: sessionCache, logger: logger}
}

// Login authenticates by email and password against the collection for
// role and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, role model.Role, email, password string) (model.TokenPair, model.Principal, error) {
	collection, err := s.resolve(role)
	if err != nil {
		return model.TokenPair{}, model.Principal{}, err
	}

	principal, err := collection.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TokenPair{}, model.Principal{}, ErrInvalidCredentials
		}
		return model.TokenPair{}, model.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	if !principal.HasPassword() {
		// External-identity principal; password login is not available.
		return model.TokenPair{}, model.Principal{}, ErrInvalidCredentials
	}
	if err := crypto.CheckPassword(*principal.PasswordHash, password); err != nil {
		return model.TokenPair{}, model.Principal{}, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, collection, principal)
	if err != nil {
		return model.TokenPair{}, model.Principal{}, err
	}
	return pair, principal, nil
}

// IssueForEmail issues a pair for a principal whose email was verified
// by the external identity provider. Unknown principals are rejected,
// not auto-created.
func (s *Service) IssueForEmail(ctx context.Context, role model.Role, email string) (model.TokenPair, model.Principal, error) {
	collection, err := s.resolve(role)
	if err != nil {
		return model.TokenPair{}, model.Principal{}, err
	}

	principal, err := collection.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TokenPair{}, model.Principal{}, ErrPrincipalNotFound
		}
		return model.TokenPair{}, model.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	pair, err := s.issue(ctx, collection, principal)
	if err != nil {
		return model.TokenPair{}, model.Principal{}, err
	}
	return pair, principal, nil
}

// Refresh runs the rotation protocol for a presented refresh token.
//
// A token that was already rotated within the cache window returns the
// previously published pair, which is what makes concurrent refreshes
// from one browser session converge on a single pair.
func (s *Service) Refresh(ctx context.Context, presented string) (model.TokenPair, error) {
	if pair, ok, err := s.cache.GetRotation(ctx, presented); err != nil {
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return model.TokenPair{}, err
	} else if ok {
		metrics.RotationsTotal.WithLabelValues("cache_hit").Inc()
		return pair, nil
	}

	id, role, err := s.codec.Verify(token.KindRefresh, presented)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			metrics.RotationsTotal.WithLabelValues("expired").Inc()
			return model.TokenPair{}, ErrTokenExpired
		}
		metrics.RotationsTotal.WithLabelValues("malformed").Inc()
		return model.TokenPair{}, ErrTokenMalformed
	}

	collection, err := s.resolve(role)
	if err != nil {
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return model.TokenPair{}, err
	}

	// The lookup is keyed by the token string itself: a well-signed,
	// unexpired token that no longer matches the stored value is
	// indistinguishable from a vanished principal and is rejected.
	principal, err := collection.GetByRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RotationsTotal.WithLabelValues("not_found").Inc()
			return model.TokenPair{}, ErrPrincipalNotFound
		}
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return model.TokenPair{}, fmt.Errorf("load principal: %w", err)
	}
	if principal.ID != id {
		metrics.RotationsTotal.WithLabelValues("not_found").Inc()
		return model.TokenPair{}, ErrPrincipalNotFound
	}

	pair, err := s.mint(principal)
	if err != nil {
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return model.TokenPair{}, err
	}

	// A started rotation runs to completion even if the client goes
	// away: partial completion would leave the cache and the store
	// disagreeing for the rest of the token's lifetime.
	detached := context.WithoutCancel(ctx)

	// Publication point. Late arrivals carrying the same superseded
	// token take the cache-hit path from here on.
	if err := s.cache.PublishRotation(detached, presented, pair); err != nil {
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return model.TokenPair{}, err
	}

	// The stored value is the source of truth for the next rotation.
	// Whole-value overwrite: when two rotations race on the same old
	// token, the last write wins and the other pair dies at its next
	// refresh.
	if err := collection.SetRefreshToken(detached, principal.ID, &pair.RefreshToken); err != nil {
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return model.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	metrics.RotationsTotal.WithLabelValues("rotated").Inc()
	return pair, nil
}

// Lookup identifies the logged-in browser behind a session cookie,
// memoizing the answer so page loads skip the principal store.
func (s *Service) Lookup(ctx context.Context, cookieToken string) (model.Session, error) {
	id, role, err := s.codec.Verify(token.KindRefresh, cookieToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return model.Session{}, ErrTokenExpired
		}
		return model.Session{}, ErrTokenMalformed
	}

	if session, ok, err := s.cache.GetSession(ctx, id, role); err != nil {
		s.logger.Warn("session cache read failed", "error", err)
	} else if ok {
		metrics.SessionCacheHits.Inc()
		return session, nil
	}
	metrics.SessionCacheMisses.Inc()

	collection, err := s.resolve(role)
	if err != nil {
		return model.Session{}, err
	}
	principal, err := collection.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, ErrPrincipalNotFound
		}
		return model.Session{}, fmt.Errorf("load principal: %w", err)
	}

	session := model.Session{ID: principal.ID, Role: principal.Role, Email: principal.Email}
	if err := s.cache.PutSession(ctx, session); err != nil {
		s.logger.Warn("session cache write failed", "error", err)
	}
	return session, nil
}

// Logout clears the server side of a session. A cookie that no longer
// verifies, or that matches no stored token, is a no-op: the browser's
// session is gone either way.
func (s *Service) Logout(ctx context.Context, cookieToken string) error {
	id, role, err := s.codec.Verify(token.KindRefresh, cookieToken)
	if err != nil {
		return nil
	}

	collection, err := s.resolve(role)
	if err != nil {
		return err
	}

	principal, err := collection.GetByRefreshToken(ctx, cookieToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find session: %w", err)
	}
	if principal.ID != id {
		// Cookie signed for one principal but stored on another; never
		// expected, clear nothing.
		s.logger.Error("session cookie subject mismatch", "token_subject", id, "stored_on", principal.ID)
		return nil
	}

	if _, err := collection.ReplaceRefreshToken(ctx, principal.ID, cookieToken, nil); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	if err := s.cache.DeleteRotation(ctx, cookieToken); err != nil {
		s.logger.Warn("rotation cache delete failed", "error", err)
	}
	if err := s.cache.DeleteSession(ctx, principal.ID, principal.Role); err != nil {
		s.logger.Warn("session cache delete failed", "error", err)
	}
	return nil
}

// CreateParams describes a principal to provision.
type CreateParams struct {
	Role       model.Role
	Email      string
	Password   string // empty: external-identity principal, no password login
	AdminLevel string
	Perms      []string
}

// CreatePrincipal provisions a record in the collection for its role.
func (s *Service) CreatePrincipal(ctx context.Context, params CreateParams) (model.Principal, error) {
	collection, err := s.resolve(params.Role)
	if err != nil {
		return model.Principal{}, err
	}

	now := time.Now().UTC()
	principal := model.Principal{
		ID:        uuid.NewString(),
		Role:      params.Role,
		Email:     normalizeEmail(params.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if params.Password != "" {
		hash, err := crypto.HashPassword(params.Password)
		if err != nil {
			return model.Principal{}, fmt.Errorf("hash password: %w", err)
		}
		principal.PasswordHash = &hash
	}

	verification, err := crypto.NewVerificationToken()
	if err != nil {
		return model.Principal{}, fmt.Errorf("verification token: %w", err)
	}
	expires := now.Add(verificationTokenTTL)
	principal.VerificationToken = &verification
	principal.VerificationExpiresAt = &expires

	if params.Role == model.RoleAdmin {
		principal.AdminLevel = params.AdminLevel
		if principal.AdminLevel == "" {
			principal.AdminLevel = model.AdminLevelStandard
		}
		principal.Permissions = params.Perms
	}

	if err := collection.Create(ctx, principal); err != nil {
		return model.Principal{}, fmt.Errorf("create principal: %w", err)
	}
	return principal, nil
}

// LoadPrincipal fetches the stored record for a verified {id, role},
// for callers that need more than the token claims (permission checks).
func (s *Service) LoadPrincipal(ctx context.Context, role model.Role, id string) (model.Principal, error) {
	collection, err := s.resolve(role)
	if err != nil {
		return model.Principal{}, err
	}
	principal, err := collection.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Principal{}, ErrPrincipalNotFound
		}
		return model.Principal{}, fmt.Errorf("load principal: %w", err)
	}
	return principal, nil
}

// VerifyAccess checks a bearer access token.
func (s *Service) VerifyAccess(tokenString string) (string, model.Role, error) {
	id, role, err := s.codec.Verify(token.KindAccess, tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", "", ErrTokenExpired
		}
		return "", "", ErrTokenMalformed
	}
	return id, role, nil
}

// RefreshTTL exposes the refresh token lifetime for the cookie Max-Age.
func (s *Service) RefreshTTL() time.Duration {
	return s.codec.TTL(token.KindRefresh)
}

func (s *Service) issue(ctx context.Context, collection repository.Collection, principal model.Principal) (model.TokenPair, error) {
	pair, err := s.mint(principal)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := collection.SetRefreshToken(ctx, principal.ID, &pair.RefreshToken); err != nil {
		return model.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return pair, nil
}

func (s *Service) mint(principal model.Principal) (model.TokenPair, error) {
	access, err := s.codec.Issue(token.KindAccess, principal.ID, principal.Role)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(token.KindRefresh, principal.ID, principal.Role)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// resolve funnels every role dispatch through one place so an
// unresolvable role is always fatal-logged, never defaulted.
func (s *Service) resolve(role model.Role) (repository.Collection, error) {
	collection, err := s.stores.Resolve(role)
	if err != nil {
		s.logger.Error("role resolution failed", "role", role, "error", err)
		return nil, err
	}
	return collection, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
