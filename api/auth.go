/*
auth.go - Registration, login, and JWT session middleware

PURPOSE:
  Account handlers and the bearer-token middleware that scopes every
  other endpoint to one user's fund.

TOKENS:
  Stateless HS256 JWTs (24h expiry) carrying the user ID as subject.
  Logout is client-side token disposal; the endpoint exists so clients
  have a uniform call, but the server keeps no session state.

PASSWORDS:
  bcrypt with the default cost. Hashes are never returned in responses.

SEE ALSO:
  - handlers.go: Handler struct, writeJSON/writeError
  - fund/store.go: User persistence
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ahorra/fund-engine/engine"
	"github.com/ahorra/fund-engine/fund"
)

const tokenTTL = 24 * time.Hour

// TokenManager issues and verifies the bearer tokens.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

func (tm *TokenManager) Generate(userID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify returns the user ID the token was issued for.
func (tm *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

// =============================================================================
// SESSION CONTEXT
// =============================================================================

type contextKey string

const sessionKey contextKey = "session"

func sessionFrom(r *http.Request) fund.Session {
	sess, _ := r.Context().Value(sessionKey).(fund.Session)
	return sess
}

// RequireAuth verifies the bearer token and injects the session.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		userID, err := h.Tokens.Verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, fund.Session{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// Register creates an account and returns a fresh token.
// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password", err)
		return
	}

	user := fund.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		writeServiceError(w, err)
		return
	}

	// A fresh account starts with a usable fund configuration; without it
	// the first period settlement has no horizon to generate against.
	defaults := engine.DefaultFundSettings(h.Service.Now())
	if err := h.Store.SaveSettings(r.Context(), user.ID, defaults); err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := h.Tokens.Generate(user.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	h.Log.WithField("user_id", user.ID).Info("user registered")
	writeJSON(w, http.StatusCreated, AuthResponse{
		Token: token,
		User:  UserDTO{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// Login verifies credentials and returns a fresh token.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		// Same response for unknown email and wrong password.
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.Tokens.Generate(user.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token: token,
		User:  UserDTO{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// Logout acknowledges the client discarding its token.
// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// GetCurrentUser returns the authenticated account.
// GET /api/user
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	user, err := h.Store.GetUser(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserDTO{ID: user.ID, Name: user.Name, Email: user.Email})
}

// UpdateProfile changes name, email, and optionally the password. A
// password change requires the current password.
// PUT /api/user/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	user, err := h.Store.GetUser(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	user.Name = strings.TrimSpace(req.Name)
	user.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.NewPassword != "" {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
			writeError(w, http.StatusUnauthorized, "Current password is incorrect", nil)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to hash password", err)
			return
		}
		user.PasswordHash = string(hash)
	}

	if err := h.Store.UpdateUser(r.Context(), *user); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserDTO{ID: user.ID, Name: user.Name, Email: user.Email})
}
