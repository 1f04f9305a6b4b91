package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r0o773rm1n41/dme-backend/internal/middleware"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/response"
	"github.com/r0o773rm1n41/dme-backend/internal/service"
	"github.com/r0o773rm1n41/dme-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService        *service.AuthService
	participantService *service.ParticipantService
	adminService       *service.AdminService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	participantService *service.ParticipantService,
	adminService *service.AdminService,
) *AuthHandler {
	return &AuthHandler{
		authService:        authService,
		participantService: participantService,
		adminService:       adminService,
	}
}

// GetParticipantProfile godoc
// GET /api/v1/auth/participant/me
// Returns the profile of the currently authenticated participant.
func (h *AuthHandler) GetParticipantProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participant, err := h.participantService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participant": participant})
}

// ParticipantLogout godoc
// POST /api/v1/auth/participant/logout
// Clears the participant's single-device session so a new login elsewhere
// no longer requires an admin reset.
func (h *AuthHandler) ParticipantLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.ResetParticipantSession(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
// Returns the profile of the currently authenticated admin.
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	admin, err := h.adminService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	permissions, err := h.adminService.GetPermissions(c.Request.Context(), admin.RoleID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"admin": gin.H{
			"id":        admin.ID,
			"email":     admin.Email,
			"name":      admin.Name,
			"role_id":   admin.RoleID,
			"role_name": admin.RoleName,
		},
		"permissions": permissions,
	})
}

// ParticipantLogin godoc
// POST /api/v1/auth/participant/login
// Validates email + password and issues a JWT, rejecting a second login
// while a session is already active on another device.
func (h *AuthHandler) ParticipantLogin(c *gin.Context) {
	var req model.ParticipantLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	participant, err := h.participantService.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(participant.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateParticipantToken(c.Request.Context(), participant.ID)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.ParticipantLoginResponse{Token: token, Participant: *participant})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password, returns JWT with permissions.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, err := h.adminService.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	permissions, err := h.adminService.GetPermissions(c.Request.Context(), admin.RoleID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	token, err := h.authService.GenerateAdminToken(admin.ID, admin.RoleID, permissions)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.AdminLoginResponse{Token: token, Admin: *admin, Permissions: permissions})
}
