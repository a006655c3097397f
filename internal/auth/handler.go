package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coursebook-app/coursebook/internal/platform/httpx"
	"github.com/coursebook-app/coursebook/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/verify-email", h.handleVerifyEmail)
	r.Post("/verify-2fa", h.handleVerifyTwoFactor)
	r.Post("/logout", h.handleLogout)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.Get("/session", h.handleSession)
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=32"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type loginResponse struct {
	Message           string `json:"message"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	Role              string `json:"role,omitempty"`
}

type verificationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Register(r.Context(), RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{
		"message": "Registered successfully. Please verify your email.",
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.logger.Error("login", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	switch result.Outcome {
	case OutcomeSuccess:
		h.establishSession(w, r, *result.Identity)
		httpx.JSON(w, http.StatusOK, loginResponse{
			Message: "Login successful.",
			Role:    result.Identity.Role,
		})
	case OutcomeTwoFactorRequired:
		httpx.JSON(w, http.StatusAccepted, loginResponse{
			Message:           "A verification code has been sent to your email.",
			TwoFactorRequired: true,
		})
	case OutcomeBanned:
		httpx.Problem(w, http.StatusForbidden, "Banned",
			"Your account has been banned. Contact support.")
	case OutcomeSuspended:
		httpx.Problem(w, http.StatusForbidden, "Suspended",
			"Account is suspended. Please verify your email to reactivate.")
	default:
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid credentials.")
	}
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !h.decode(w, r, &req) {
		return
	}
	ok, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.logger.Error("verify email", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Verification Failed",
			"Invalid or expired verification code.")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Email successfully verified."})
}

func (h *Handler) handleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !h.decode(w, r, &req) {
		return
	}
	ok, err := h.service.VerifyTwoFactor(r.Context(), req.Email, req.Code)
	if err != nil {
		h.logger.Error("verify 2fa", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Verification Failed",
			"Invalid or expired verification code.")
		return
	}

	identity, err := h.service.IdentityByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("resolve identity after 2fa", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.establishSession(w, r, *identity)
	httpx.JSON(w, http.StatusOK, loginResponse{
		Message: "Verification successful. You are now logged in.",
		Role:    identity.Role,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if !sess.Authenticated() {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "You are not logged in.")
		return
	}
	if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
		h.logger.Warn("remove session", slog.Any("error", err))
	}
	h.sessionManager.Destroy(sess)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password reset email sent."})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	ok, err := h.service.SubmitPasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.logger.Error("reset password", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Reset Failed", "Invalid or expired reset token.")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully."})
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Identity      *shared.Identity `json:"identity,omitempty"`
	CSRFToken     string           `json:"csrf_token,omitempty"`
}

// handleSession reports the caller's session state and hands out the
// CSRF token used for mutating requests.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authenticated: sess.Authenticated(),
		Identity:      sess.Identity(),
		CSRFToken:     token,
	})
}

func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, identity shared.Identity) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		return
	}
	if err := h.sessionManager.Establish(r.Context(), sess, identity); err != nil {
		h.logger.Error("establish session", slog.Any("error", err))
		return
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, identity.AccountID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		detail := "invalid request"
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			detail = "invalid field: " + fieldErrs[0].Field()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return false
	}
	return true
}
