package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/pagination"
)

// UsersHandler serves user registration and listing.
type UsersHandler struct {
	chat   *chat.Service
	logger *slog.Logger
}

// NewUsersHandler creates a users handler.
func NewUsersHandler(log *slog.Logger, svc *chat.Service) *UsersHandler {
	return &UsersHandler{chat: svc, logger: logger.Or(log).With(slog.String("handler", "users"))}
}

// Register mounts POST /users (public) and GET /users.
func (h *UsersHandler) Register(e *echo.Echo) {
	e.POST("/users", h.Create)
	e.GET("/users", h.List)
}

// Create registers a gateway account and its backend user.
func (h *UsersHandler) Create(c echo.Context) error {
	var req chat.Registration
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("body", err.Error())
	}
	id, err := h.chat.RegisterUser(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, NewEnvelope(http.StatusOK, "User created successfully!", map[string]any{
		"id":       id.ID,
		"username": id.Username,
	}))
}

// List returns one page of gateway accounts.
func (h *UsersHandler) List(c echo.Context) error {
	req, err := bindPage(c)
	if err != nil {
		return err
	}
	page, err := h.chat.ListUsers(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// bindPage reads pageSize and pageNumber, defaulting to 10 and 1.
func bindPage(c echo.Context) (pagination.Request, error) {
	req := pagination.DefaultRequest()
	err := echo.QueryParamsBinder(c).
		Int("pageSize", &req.Size).
		Int("pageNumber", &req.Number).
		BindError()
	if err != nil {
		return req, apperr.Validation("page", err.Error())
	}
	return req, req.Validate()
}
