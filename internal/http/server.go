package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"ggecl/auth-sessions/internal/config"
	"ggecl/auth-sessions/internal/model"
	"ggecl/auth-sessions/internal/repository"
	"ggecl/auth-sessions/internal/session"
)

// PermManagePrincipals guards the provisioning endpoint.
const PermManagePrincipals = "manage_principals"

type Server struct {
	cfg      config.Config
	sessions *session.Service
	logger   *slog.Logger
}

func NewServer(cfg config.Config, sessions *session.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, sessions: sessions, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Get("/auth/session", s.handleSession)
	r.Post("/auth/logout", s.handleLogout)

	r.With(s.authMiddleware, s.requirePermission(model.RoleAdmin, PermManagePrincipals)).
		Post("/principals", s.handleCreatePrincipal)

	// The session cookie travels cross-site, so CORS must be
	// credentialed and origin-listed rather than wildcarded.
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	}).Handler(r)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type principalSummary struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

type tokenResponse struct {
	Token     string           `json:"token"`
	Principal principalSummary `json:"principal,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	pair, principal, err := s.sessions.Login(r.Context(), role, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.setSessionCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		Token: pair.AccessToken,
		Principal: principalSummary{
			ID:    principal.ID,
			Role:  principal.Role.String(),
			Email: principal.Email,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookieToken, ok := s.sessionCookie(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_cookie")
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), cookieToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "token_expired")
		case errors.Is(err, session.ErrTokenMalformed),
			errors.Is(err, session.ErrPrincipalNotFound):
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "token_invalid")
		default:
			s.logger.Error("refresh failed", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	s.setSessionCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{Token: pair.AccessToken})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cookieToken, ok := s.sessionCookie(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_cookie")
		return
	}

	sess, err := s.sessions.Lookup(r.Context(), cookieToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			writeError(w, http.StatusUnauthorized, "token_expired")
		case errors.Is(err, session.ErrTokenMalformed):
			writeError(w, http.StatusUnauthorized, "token_invalid")
		case errors.Is(err, session.ErrPrincipalNotFound):
			writeError(w, http.StatusNotFound, "principal_not_found")
		default:
			s.logger.Error("session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookieToken, ok := s.sessionCookie(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.sessions.Logout(r.Context(), cookieToken); err != nil {
		s.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createPrincipalRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password,omitempty"`
	Role        string   `json:"role"`
	AdminLevel  string   `json:"adminLevel,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (s *Server) handleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req createPrincipalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	principal, err := s.sessions.CreatePrincipal(r.Context(), session.CreateParams{
		Role:       role,
		Email:      req.Email,
		Password:   req.Password,
		AdminLevel: req.AdminLevel,
		Perms:      req.Permissions,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRoleUnresolvable) {
			writeError(w, http.StatusBadRequest, "invalid_role")
			return
		}
		s.logger.Error("create principal failed", "error", err)
		writeError(w, http.StatusBadRequest, "principal_create_failed")
		return
	}

	writeJSON(w, http.StatusCreated, principalSummary{
		ID:    principal.ID,
		Role:  principal.Role.String(),
		Email: principal.Email,
	})
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
