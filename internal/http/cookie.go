package http

import "net/http"

// The refresh token rides in an HTTP-only cookie so scripts never see
// it; SameSite=None because the dashboard is served from another
// origin.

func (s *Server) setSessionCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    refreshToken,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   int(s.sessions.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

// clearSessionCookie expires the cookie with the same attributes it was
// set with; browsers only drop it on an exact match.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

func (s *Server) sessionCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
