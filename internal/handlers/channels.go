package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/logger"
)

// ChannelsHandler serves channel listings, messages and membership.
type ChannelsHandler struct {
	chat   *chat.Service
	logger *slog.Logger
}

// CreateChannelRequest is the body for POST /channels.
type CreateChannelRequest struct {
	ChannelName string   `json:"channelName"`
	Members     []string `json:"members"`
}

// SendMessageRequest is the body for POST /channels/:channel/messages.
type SendMessageRequest struct {
	TextMessage string `json:"textMessage"`
}

// NewChannelsHandler creates a channels handler.
func NewChannelsHandler(log *slog.Logger, svc *chat.Service) *ChannelsHandler {
	return &ChannelsHandler{chat: svc, logger: logger.Or(log).With(slog.String("handler", "channels"))}
}

// Register mounts the channel routes. All of them require a token.
func (h *ChannelsHandler) Register(e *echo.Echo) {
	g := e.Group("/channels")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:channel/messages", h.Messages)
	g.POST("/:channel/messages", h.Send)
	g.POST("/:channel/membership", h.Join)
	g.DELETE("/:channel/membership", h.Leave)
}

// List returns the caller's channels with their last message. exclude may be repeated or
// comma separated.
func (h *ChannelsHandler) List(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	req, err := bindPage(c)
	if err != nil {
		return err
	}
	exclude := lo.FlatMap(c.QueryParams()["exclude"], func(v string, _ int) []string {
		return strings.Split(v, ",")
	})
	page, err := h.chat.ListChannels(c.Request().Context(), id, req, exclude)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Create creates a channel with the caller and members in it.
func (h *ChannelsHandler) Create(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req CreateChannelRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("body", err.Error())
	}
	ref, err := h.chat.CreateChannel(c.Request().Context(), id, req.ChannelName, req.Members)
	if err != nil {
		return err
	}
	return respond(c, NewEnvelope(http.StatusOK, "Channel created successfully!", map[string]any{
		"channel_id": ref.ID,
	}))
}

// Messages returns one page of a channel's messages, newest first.
func (h *ChannelsHandler) Messages(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	req, err := bindPage(c)
	if err != nil {
		return err
	}
	page, err := h.chat.ListMessages(c.Request().Context(), id, c.Param("channel"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Send posts a text message and publishes it to the channel's subscribers.
func (h *ChannelsHandler) Send(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("body", err.Error())
	}
	msg, err := h.chat.SendMessage(c.Request().Context(), id, c.Param("channel"), req.TextMessage)
	if err != nil {
		return err
	}
	return respond(c, NewEnvelope(http.StatusOK, "Message sent successfully!", map[string]any{
		"message_id": msg.ID,
	}))
}

// Join adds the caller to a public channel.
func (h *ChannelsHandler) Join(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	if err := h.chat.JoinChannel(c.Request().Context(), id, c.Param("channel")); err != nil {
		return err
	}
	return respond(c, NewEnvelope(http.StatusOK, "Joined channel.", nil))
}

// Leave removes the caller from a channel.
func (h *ChannelsHandler) Leave(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	if err := h.chat.LeaveChannel(c.Request().Context(), id, c.Param("channel")); err != nil {
		return err
	}
	return respond(c, NewEnvelope(http.StatusOK, "Left channel.", nil))
}
