package handlers

import (
	"errors"
	"time"

	"authz_service/internal/models"
	"authz_service/internal/service"

	"github.com/gofiber/fiber/v3"
)

// userContext builds the caller identity from the gateway headers. The
// service never parses tokens; it trusts what the gateway forwards.
func userContext(c fiber.Ctx) models.UserContext {
	return models.UserContext{
		UserID:    c.Get("X-User-ID"),
		UserRole:  models.Role(c.Get("X-User-Role")),
		UserEmail: c.Get("X-User-Email"),
	}
}

// statusForCode maps result codes to HTTP statuses. The core itself never
// deals in statuses; that mapping lives here at the route boundary.
func statusForCode(code string) int {
	switch code {
	case models.CodeUserNotFound, models.CodeSessionNotFound:
		return fiber.StatusNotFound
	case models.CodeSessionExpired, models.CodeLoginFailed:
		return fiber.StatusUnauthorized
	case models.CodeUserInactive:
		return fiber.StatusForbidden
	case models.CodeInvalidInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

type PermissionHandler struct {
	permissionService *service.PermissionService
}

func NewPermissionHandler(permissionService *service.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissionService: permissionService}
}

func (h *PermissionHandler) RegisterRoutes(app *fiber.App) {
	permissionGroup := app.Group("/protected/authz/permissions")

	permissionGroup.Post("/check", h.Check)
	permissionGroup.Get("/effective", h.Effective)
	permissionGroup.Get("/transitions", h.Transitions)
	permissionGroup.Post("/grants", h.AssignGrant)
	permissionGroup.Get("/grants/user/:userId", h.ListGrants)
	permissionGroup.Delete("/grants/user/:userId", h.RevokeAllGrants)
	permissionGroup.Delete("/grants/:grantId", h.RevokeGrant)
}

func (h *PermissionHandler) Check(c fiber.Ctx) error {
	var request struct {
		Action     string `json:"action"`
		ResourceID string `json:"resourceId"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	check := h.permissionService.HasPermission(c.Context(), userContext(c), request.Action, request.ResourceID)
	return c.JSON(check)
}

func (h *PermissionHandler) Effective(c fiber.Ctx) error {
	includeDynamic := c.Query("includeDynamic", "true") != "false"

	permissions, err := h.permissionService.GetEffectivePermissions(c.Context(), userContext(c), includeDynamic)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"permissions": permissions,
	})
}

func (h *PermissionHandler) Transitions(c fiber.Ctx) error {
	from := models.WorkflowState(c.Query("from"))
	if from == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query parameter 'from' is required",
		})
	}

	transitions := h.permissionService.GetAllowedTransitions(from, userContext(c).UserRole)
	return c.JSON(fiber.Map{
		"from":        from,
		"transitions": transitions,
	})
}

func (h *PermissionHandler) AssignGrant(c fiber.Ctx) error {
	var request struct {
		UserID         string            `json:"userId"`
		Permission     string            `json:"permission"`
		ExpiresInHours int               `json:"expiresInHours"`
		Reason         string            `json:"reason"`
		Metadata       map[string]string `json:"metadata"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	grant, err := h.permissionService.AssignDynamicPermission(c.Context(), userContext(c), request.UserID, request.Permission, service.GrantOptions{
		ExpiresIn: time.Duration(request.ExpiresInHours) * time.Hour,
		Reason:    request.Reason,
		Metadata:  request.Metadata,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to manage grants",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(grant)
}

func (h *PermissionHandler) ListGrants(c fiber.Ctx) error {
	grants, err := h.permissionService.ListUserGrants(c.Context(), userContext(c), c.Params("userId"))
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to view grants",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"grants": grants,
	})
}

func (h *PermissionHandler) RevokeGrant(c fiber.Ctx) error {
	var request struct {
		Reason string `json:"reason"`
	}
	c.Bind().Body(&request)

	revoked, err := h.permissionService.RevokePermission(c.Context(), userContext(c), c.Params("grantId"), request.Reason)
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to manage grants",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if !revoked {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Grant not found or already inactive",
		})
	}
	return c.JSON(fiber.Map{
		"revoked": true,
	})
}

func (h *PermissionHandler) RevokeAllGrants(c fiber.Ctx) error {
	var request struct {
		Reason string `json:"reason"`
	}
	c.Bind().Body(&request)

	count, err := h.permissionService.RevokeAllUserPermissions(c.Context(), userContext(c), c.Params("userId"), request.Reason)
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to manage grants",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"revoked": count,
	})
}
