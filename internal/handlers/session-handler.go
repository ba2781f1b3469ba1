package handlers

import (
	"authz_service/internal/models"
	"authz_service/internal/service"

	"github.com/gofiber/fiber/v3"
)

type SessionHandler struct {
	sessionService    *service.SessionService
	permissionService *service.PermissionService
}

func NewSessionHandler(sessionService *service.SessionService, permissionService *service.PermissionService) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		permissionService: permissionService,
	}
}

func (h *SessionHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/auth/login", h.Login)

	sessionGroup := app.Group("/protected/authz/sessions")
	sessionGroup.Post("/", h.Create)
	sessionGroup.Get("/stats", h.Stats)
	sessionGroup.Post("/validate", h.ValidateToken)
	sessionGroup.Get("/:id", h.Get)
	sessionGroup.Put("/:id/activity", h.UpdateActivity)
	sessionGroup.Put("/:id/refresh", h.Refresh)
	sessionGroup.Delete("/user/:userId", h.DeleteAllForUser)
	sessionGroup.Delete("/:id", h.Delete)
}

func (h *SessionHandler) Login(c fiber.Ctx) error {
	var request struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result := h.sessionService.Login(c.Context(), request.Username, request.Password, service.CreateSessionInput{
		Device:     c.Get("User-Agent"),
		IPAddress:  c.IP(),
		RememberMe: request.RememberMe,
	})
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": result.Session,
		"token":   result.Session.Token,
	})
}

func (h *SessionHandler) Create(c fiber.Ctx) error {
	var request struct {
		UserID     string `json:"userId"`
		Token      string `json:"token"`
		Device     string `json:"device"`
		Browser    string `json:"browser"`
		IPAddress  string `json:"ipAddress"`
		Location   string `json:"location"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result := h.sessionService.CreateSession(c.Context(), service.CreateSessionInput{
		UserID:     request.UserID,
		Token:      request.Token,
		Device:     request.Device,
		Browser:    request.Browser,
		IPAddress:  request.IPAddress,
		Location:   request.Location,
		RememberMe: request.RememberMe,
	})
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *SessionHandler) Get(c fiber.Ctx) error {
	result := h.sessionService.GetSession(c.Context(), c.Params("id"))
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.JSON(result)
}

func (h *SessionHandler) ValidateToken(c fiber.Ctx) error {
	var request struct {
		Token string `json:"token"`
	}
	if err := c.Bind().Body(&request); err != nil || request.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token is required",
		})
	}

	result := h.sessionService.GetSessionByToken(c.Context(), request.Token)
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.JSON(result)
}

func (h *SessionHandler) UpdateActivity(c fiber.Ctx) error {
	result := h.sessionService.UpdateActivity(c.Context(), c.Params("id"))
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.JSON(result)
}

func (h *SessionHandler) Refresh(c fiber.Ctx) error {
	var request struct {
		RememberMe bool `json:"rememberMe"`
	}
	c.Bind().Body(&request)

	result := h.sessionService.RefreshSession(c.Context(), c.Params("id"), request.RememberMe)
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.JSON(result)
}

func (h *SessionHandler) Delete(c fiber.Ctx) error {
	result := h.sessionService.DeleteSession(c.Context(), c.Params("id"))
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.JSON(result)
}

func (h *SessionHandler) DeleteAllForUser(c fiber.Ctx) error {
	user := userContext(c)
	targetUserID := c.Params("userId")

	// Users may always end their own sessions; ending someone else's
	// requires user management capability.
	if targetUserID != user.UserID {
		check := h.permissionService.HasPermission(c.Context(), user, models.PermUsersManage, "")
		if !check.HasPermission {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to end other users' sessions",
			})
		}
	}

	result := h.sessionService.DeleteAllUserSessions(c.Context(), targetUserID)
	if !result.Success {
		return c.Status(statusForCode(result.Code)).JSON(result)
	}
	return c.JSON(result)
}

func (h *SessionHandler) Stats(c fiber.Ctx) error {
	user := userContext(c)
	targetUserID := c.Query("userId")

	if targetUserID == "" || targetUserID != user.UserID {
		check := h.permissionService.HasPermission(c.Context(), user, models.PermSessionsViewStats, "")
		if !check.HasPermission {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to view session statistics",
			})
		}
	}

	stats, err := h.sessionService.GetSessionStats(c.Context(), targetUserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(stats)
}
