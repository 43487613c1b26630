package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
	"github.com/bashaMendi/ToDo-back/internal/server/services"
)

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User         models.User `json:"user"`
	SessionToken string      `json:"sessionToken"`
	CSRFToken    string      `json:"csrfToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
}

// setSessionTransport writes the HTTP-only cookie and the header mirrors.
func (s *Server) setSessionTransport(w http.ResponseWriter, res *services.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    res.SessionToken,
		Path:     "/",
		Expires:  res.SessionExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(common.SessionHeaderName, res.SessionToken)
	w.Header().Set(common.SessionExpiryHeaderName, res.SessionExpiresAt.UTC().Format(time.RFC3339))
}

func (s *Server) clearSessionTransport(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) writeAuth(w http.ResponseWriter, status int, res *services.AuthResult) {
	s.setSessionTransport(w, res)
	writeJSON(w, status, authResponse{
		User:         res.User,
		SessionToken: res.SessionToken,
		CSRFToken:    res.CSRFToken,
		ExpiresAt:    res.SessionExpiresAt.UTC(),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}
	res, err := s.users.Signup(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeAuth(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}
	res, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeAuth(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		// a submitted CSRF token must match; absence is tolerated so stale
		// clients can always drop their session
		if submitted := r.Header.Get(common.CSRFHeaderName); submitted != "" &&
			!s.guard.Validate(r.Context(), token, submitted) {
			s.writeError(r.Context(), w, common.ErrorForbidden)
			return
		}
		if err := s.users.Logout(r.Context(), token); err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
	}
	s.clearSessionTransport(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		s.writeError(r.Context(), w, common.ErrorUnauthorized)
		return
	}
	res, err := s.users.Refresh(r.Context(), token)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeAuth(w, http.StatusOK, res)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}
	if err := s.users.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	// identical outcome whether or not the account exists
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}
	if err := s.users.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
