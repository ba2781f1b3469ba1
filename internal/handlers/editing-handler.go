package handlers

import (
	"authz_service/internal/models"
	"authz_service/internal/service"

	"github.com/gofiber/fiber/v3"
)

type EditingHandler struct {
	editingService    *service.EditingService
	permissionService *service.PermissionService
}

func NewEditingHandler(editingService *service.EditingService, permissionService *service.PermissionService) *EditingHandler {
	return &EditingHandler{
		editingService:    editingService,
		permissionService: permissionService,
	}
}

func (h *EditingHandler) RegisterRoutes(app *fiber.App) {
	editingGroup := app.Group("/protected/authz/editing")

	editingGroup.Post("/sessions", h.StartSession)
	editingGroup.Delete("/sessions/:sessionId", h.EndSession)
	editingGroup.Put("/sessions/:sessionId/extend", h.ExtendSession)
	editingGroup.Get("/sessions/:sessionId/validate", h.ValidateSession)
	editingGroup.Get("/sessions/mine", h.MySessions)
	editingGroup.Get("/products/:resourceId/sessions", h.ProductSessions)
	editingGroup.Delete("/products/:resourceId/sessions", h.ForceEndProductSessions)
	editingGroup.Get("/products/:resourceId/can-edit", h.CanEdit)
	editingGroup.Get("/statistics", h.Statistics)
}

func (h *EditingHandler) StartSession(c fiber.Ctx) error {
	var request struct {
		ResourceID    string `json:"resourceId"`
		WorkflowState string `json:"workflowState"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user := userContext(c)
	snapshot := &models.ResourceSnapshot{
		ID:            request.ResourceID,
		WorkflowState: models.WorkflowState(request.WorkflowState),
	}

	result := h.editingService.StartEditingSession(request.ResourceID, user.UserID, user.UserEmail, user.UserRole, snapshot)
	if !result.Success {
		status := fiber.StatusConflict
		if result.ExistingSession == nil {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *EditingHandler) EndSession(c fiber.Ctx) error {
	user := userContext(c)
	if !h.editingService.EndEditingSession(c.Params("sessionId"), user.UserID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found or not yours",
		})
	}
	return c.JSON(fiber.Map{
		"ended": true,
	})
}

func (h *EditingHandler) ExtendSession(c fiber.Ctx) error {
	if !h.editingService.ExtendSession(c.Params("sessionId")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.JSON(fiber.Map{
		"extended": true,
	})
}

func (h *EditingHandler) ValidateSession(c fiber.Ctx) error {
	user := userContext(c)
	validation := h.editingService.ValidateSession(c.Params("sessionId"), user.UserID)
	if !validation.IsValid {
		return c.Status(fiber.StatusNotFound).JSON(validation)
	}
	return c.JSON(validation)
}

func (h *EditingHandler) MySessions(c fiber.Ctx) error {
	user := userContext(c)
	return c.JSON(fiber.Map{
		"sessions": h.editingService.GetUserSessions(user.UserID),
	})
}

func (h *EditingHandler) ProductSessions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": h.editingService.GetProductSessions(c.Params("resourceId")),
	})
}

func (h *EditingHandler) ForceEndProductSessions(c fiber.Ctx) error {
	user := userContext(c)
	check := h.permissionService.HasPermission(c.Context(), user, models.PermSessionsForceEnd, c.Params("resourceId"))
	if !check.HasPermission {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to force-end sessions",
		})
	}

	ended := h.editingService.ForceEndProductSessions(c.Params("resourceId"), user.UserID)
	return c.JSON(fiber.Map{
		"ended": ended,
	})
}

func (h *EditingHandler) CanEdit(c fiber.Ctx) error {
	user := userContext(c)
	return c.JSON(fiber.Map{
		"canEdit": h.editingService.CanEditProduct(c.Params("resourceId"), user.UserID, user.UserRole),
	})
}

func (h *EditingHandler) Statistics(c fiber.Ctx) error {
	user := userContext(c)
	check := h.permissionService.HasPermission(c.Context(), user, models.PermSessionsViewStats, "")
	if !check.HasPermission {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to view statistics",
		})
	}
	return c.JSON(h.editingService.GetEditingStatistics())
}
