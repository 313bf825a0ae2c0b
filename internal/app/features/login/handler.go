// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"

	"github.com/musterapp/muster/internal/app/features/shared/respond"
	userstore "github.com/musterapp/muster/internal/app/store/users"
	"github.com/musterapp/muster/internal/app/system/auth"
	"github.com/musterapp/muster/internal/app/system/ratelimit"
	"github.com/musterapp/muster/internal/app/system/timeouts"
	"github.com/musterapp/muster/internal/domain/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Handler serves account signup, login, and the one-time role choice.
type Handler struct {
	Users   *userstore.Store
	Tokens  *auth.TokenManager
	Limiter *ratelimit.Limiter
	Log     *zap.Logger
}

func NewHandler(users *userstore.Store, tokens *auth.TokenManager, limiter *ratelimit.Limiter, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Tokens: tokens, Limiter: limiter, Log: logger}
}

type credentialsRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// HandleSignup handles POST /auth/signup.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		respond.Error(w, http.StatusBadRequest, "email and a password of at least 8 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Log.Error("signup: hashing password failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "could not create account")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.Create(ctx, models.User{
		DisplayName:  req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			respond.Error(w, http.StatusConflict, err.Error())
			return
		}
		h.Log.Error("signup: creating user failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "could not create account")
		return
	}

	h.issueSession(w, u)
	h.Log.Info("account created", zap.String("user_id", u.ID))
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, userstore.ErrNotFound) {
			h.Log.Error("login: user lookup failed", zap.Error(err))
		}
		respond.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		respond.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	// A successful login clears the caller's throttle window.
	if h.Limiter != nil {
		h.Limiter.Reset(ratelimit.ClientIP(r))
	}
	h.issueSession(w, u)
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleChooseRole handles POST /auth/role. The role is chosen exactly
// once at onboarding; repeat attempts are rejected.
func (h *Handler) HandleChooseRole(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "sign in first")
		return
	}

	var req roleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !models.ValidRole(req.Role) {
		respond.Error(w, http.StatusBadRequest, "role must be member, volunteer, or organizer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Users.SetRole(ctx, user.ID, req.Role); err != nil {
		switch {
		case errors.Is(err, userstore.ErrRoleAlreadySet):
			respond.Error(w, http.StatusConflict, err.Error())
		case errors.Is(err, userstore.ErrNotFound):
			respond.Error(w, http.StatusNotFound, err.Error())
		default:
			h.Log.Error("role choice failed", zap.Error(err), zap.String("user_id", user.ID))
			respond.Error(w, http.StatusInternalServerError, "could not set role")
		}
		return
	}

	u, err := h.Users.GetByID(ctx, user.ID)
	if err != nil {
		h.Log.Error("role choice: reread failed", zap.Error(err), zap.String("user_id", user.ID))
		respond.Error(w, http.StatusInternalServerError, "could not set role")
		return
	}

	// Reissue so the token carries the new role.
	h.issueSession(w, u)
	h.Log.Info("role chosen", zap.String("user_id", u.ID), zap.String("role", u.Role))
}

func (h *Handler) issueSession(w http.ResponseWriter, u models.User) {
	token, err := h.Tokens.Issue(auth.SessionUser{ID: u.ID, Name: u.DisplayName, Role: u.Role})
	if err != nil {
		h.Log.Error("issuing token failed", zap.Error(err), zap.String("user_id", u.ID))
		respond.Error(w, http.StatusInternalServerError, "could not start session")
		return
	}
	respond.JSON(w, http.StatusOK, sessionResponse{Token: token, User: u})
}
