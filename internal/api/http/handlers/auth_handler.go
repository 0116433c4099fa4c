package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// AuthHandler exposes registration, login and profile operations.
type AuthHandler struct {
	identity *service.IdentityService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(identity *service.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// Register handles POST /auth/register. New accounts always start as
// ordinary users; role changes are an admin concern outside this API.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	acc, err := h.identity.Register(c.UserContext(), service.RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		Sector:      req.Sector,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.AccountFromDomain(acc))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	token, acc, err := h.identity.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{
		Token:   token,
		Account: dto.AccountFromDomain(acc),
	})
}

// UpdateDisplayName handles PATCH /auth/profile/display-name.
func (h *AuthHandler) UpdateDisplayName(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateDisplayNameRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if err := h.identity.UpdateDisplayName(c.UserContext(), caller, req.DisplayName); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
