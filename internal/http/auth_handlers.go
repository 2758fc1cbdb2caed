package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linova-go/internal/models"
	"linova-go/internal/services"
)

const (
	minPasswordLength   = 6
	defaultRecoveryLink = "linova://reset-password"
)

type SignUpRequest struct {
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Data     *UserMetadataDTO `json:"data"`
}

type TokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type RecoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

type VerifyRequest struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

func (s *Server) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	email := services.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		WriteError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		WriteError(w, http.StatusBadRequest, "Password should be at least 6 characters")
		return
	}
	hash, err := s.Tokens.HashPassword(req.Password)
	if err != nil {
		writeServiceError(w, s.Log, "hash password", err)
		return
	}
	var name, fullName *string
	if req.Data != nil {
		name = optionalString(req.Data.Name)
		fullName = optionalString(req.Data.FullName)
	}
	user, err := services.CreateAccount(s.DB, email, hash, name, fullName)
	if err != nil {
		writeServiceError(w, s.Log, "sign up", err)
		return
	}
	s.issueSession(w, user)
}

// Token implements the password and refresh_token grants.
func (s *Server) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.passwordGrant(w, req)
	case "refresh_token":
		s.refreshGrant(w, req)
	default:
		WriteError(w, http.StatusBadRequest, "Unsupported grant type")
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, req TokenRequest) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "Invalid login credentials")
		return
	}
	user, err := services.FindUserByEmail(s.DB, req.Email)
	if err != nil {
		if _, ok := services.AsServiceError(err); ok {
			WriteError(w, http.StatusBadRequest, "Invalid login credentials")
			return
		}
		writeServiceError(w, s.Log, "find user", err)
		return
	}
	if !s.Tokens.VerifyPassword(req.Password, user.PasswordHash) {
		WriteError(w, http.StatusBadRequest, "Invalid login credentials")
		return
	}
	if user.Status != services.UserStatusActive {
		WriteError(w, http.StatusForbidden, "Authentication failed")
		return
	}
	if err := services.SetLastLogin(s.DB, user.ID); err != nil {
		s.Log.Warn("set last login failed", "user_id", user.ID, "error", err)
	}
	s.issueSession(w, user)
}

func (s *Server) refreshGrant(w http.ResponseWriter, req TokenRequest) {
	userID, err := s.Tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		writeServiceError(w, s.Log, "parse refresh token", err)
		return
	}
	user, err := services.GetUser(s.DB, userID)
	if err != nil {
		if _, ok := services.AsServiceError(err); ok {
			WriteError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		writeServiceError(w, s.Log, "get user", err)
		return
	}
	if user.Status != services.UserStatusActive {
		WriteError(w, http.StatusForbidden, "Authentication failed")
		return
	}
	s.issueSession(w, user)
}

// Logout is acknowledged only; tokens are stateless and expire on their own.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Recover issues a one-time recovery code for email. The answer is the same
// whether or not the account exists.
func (s *Server) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}
	user, err := services.FindUserByEmail(s.DB, req.Email)
	if err != nil {
		if _, ok := services.AsServiceError(err); !ok {
			writeServiceError(w, s.Log, "find user", err)
			return
		}
		s.Log.Debug("recovery requested for unknown email")
		WriteJSON(w, http.StatusOK, map[string]string{})
		return
	}
	code, hash, err := services.NewRecoveryCode()
	if err != nil {
		writeServiceError(w, s.Log, "recovery code", err)
		return
	}
	ttl := time.Duration(s.Config.RecoveryTTLSeconds) * time.Second
	if _, err := services.CreateRecoveryCode(s.DB, user.ID, hash, ttl); err != nil {
		writeServiceError(w, s.Log, "store recovery code", err)
		return
	}
	link := RecoveryLink(req.RedirectTo, code)
	if s.Config.DevMode() {
		s.Log.Info("recovery link issued", "user_id", user.ID, "link", link)
	} else {
		s.Log.Info("recovery code issued", "user_id", user.ID)
	}
	WriteJSON(w, http.StatusOK, map[string]string{})
}

// Verify exchanges a recovery code for a session.
func (s *Server) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if req.Type != "recovery" || strings.TrimSpace(req.Code) == "" {
		WriteError(w, http.StatusBadRequest, "Unsupported verification")
		return
	}
	userID, err := services.ConsumeRecoveryCode(s.DB, services.HashRecoveryCode(req.Code))
	if err != nil {
		writeServiceError(w, s.Log, "consume recovery code", err)
		return
	}
	user, err := services.GetUser(s.DB, userID)
	if err != nil {
		writeServiceError(w, s.Log, "get user", err)
		return
	}
	s.issueSession(w, user)
}

func (s *Server) issueSession(w http.ResponseWriter, user models.User) {
	pair, err := s.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeServiceError(w, s.Log, "issue tokens", err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSessionDTO(pair, user))
}

// RecoveryLink appends code to redirectTo, falling back to the app's reset
// screen when redirectTo is missing or unparsable.
func RecoveryLink(redirectTo, code string) string {
	target := strings.TrimSpace(redirectTo)
	if target == "" {
		target = defaultRecoveryLink
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" {
		parsed, _ = url.Parse(defaultRecoveryLink)
	}
	query := parsed.Query()
	query.Set("code", code)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func optionalString(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	return &value
}
