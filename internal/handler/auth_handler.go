package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contestvn/exam-backend/internal/middleware"
	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/repository"
	"github.com/contestvn/exam-backend/internal/response"
	"github.com/contestvn/exam-backend/internal/service"
	"github.com/contestvn/exam-backend/internal/validator"
)

// AuthHandler handles registration, login and session endpoints.
type AuthHandler struct {
	authService *service.AuthService
	accounts    *repository.AccountRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, accounts *repository.AccountRepository) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		accounts:    accounts,
	}
}

// Register godoc
// POST /api/v1/auth/register
// Creates a contestant account and returns a session token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	acc, token, err := h.authService.Register(c.Request.Context(), req, c.ClientIP())
	switch {
	case errors.Is(err, service.ErrRegistrationLimited):
		response.Fail(c, http.StatusTooManyRequests, response.ErrRegistrationLimit)
		return
	case errors.Is(err, repository.ErrDuplicateEmail):
		response.Fail(c, http.StatusConflict, response.ErrEmailTaken)
		return
	case errors.Is(err, repository.ErrDuplicateNational):
		response.Fail(c, http.StatusConflict, response.ErrNationalIDTaken)
		return
	case errors.Is(err, repository.ErrDuplicatePhone):
		response.Fail(c, http.StatusConflict, response.ErrPhoneTaken)
		return
	case err != nil:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":   token,
		"account": accountView(acc),
	})
}

// Login godoc
// POST /api/v1/auth/login
// Authenticates by email or national ID. A successful login supersedes
// any earlier session for the same account.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	acc, token, err := h.authService.Login(c.Request.Context(), req.Identifier, req.Password, c.ClientIP())
	switch {
	case errors.Is(err, service.ErrTooManyLoginFails):
		response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyLoginFails)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	case err != nil:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"account": accountView(acc),
	})
}

// AdminLogin godoc
// POST /api/v1/admin/login
// Authenticates the env-provisioned admin.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, err := h.authService.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the authenticated contestant's profile and exam status.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	userID, err := parseUserID(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	acc, err := h.accounts.GetByID(c.Request.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"account": accountView(acc)})
}

// Logout godoc
// POST /api/v1/auth/logout
// Invalidates the contestant's active session.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// accountView is the account shape returned to the owning contestant.
// The answer key and choice orders never appear here.
func accountView(acc *model.Account) gin.H {
	return gin.H{
		"id":           acc.ID,
		"full_name":    acc.FullName,
		"email":        acc.Email,
		"phone":        acc.Phone,
		"dob":          acc.DOB.Format("2006-01-02"),
		"quiz_status":  acc.Quiz.Status,
		"essay_count":  len(acc.Essay.Attempts),
		"submitted_at": acc.Quiz.SubmittedAt,
	}
}
