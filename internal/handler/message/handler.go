package message

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebridge/internal/handler"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/pkg/httputil"
	"github.com/jwalitptl/carebridge/pkg/realtime"
)

type Service interface {
	Post(ctx context.Context, actor model.Actor, transferID uuid.UUID, text string) (*model.Message, error)
	List(ctx context.Context, actor model.Actor, transferID uuid.UUID) ([]*model.Message, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, actor model.Actor, transferID uuid.UUID) error
}

type Handler struct {
	service   Service
	transfers Authorizer
	hub       *realtime.Hub
}

func NewHandler(service Service, transfers Authorizer, hub *realtime.Hub) *Handler {
	return &Handler{service: service, transfers: transfers, hub: hub}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	messages := r.Group("/transfers/:id/messages")
	{
		messages.GET("", h.ListMessages)
		messages.POST("", h.PostMessage)
		messages.GET("/ws", h.Stream)
	}
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.service.List(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(msgs))
}

func (h *Handler) PostMessage(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.PostMessageRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	msg, err := h.service.Post(c.Request.Context(), middleware.ActorFrom(c), id, req.Message)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(msg))
}

// Stream upgrades to a websocket carrying the transfer's new messages.
// Visibility is checked once, before the upgrade.
func (h *Handler) Stream(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFrom(c)
	if err := h.transfers.Authorize(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, realtime.TransferTopic(id)); err != nil {
		log.Warn().Err(err).
			Str("transfer_id", id.String()).
			Str("actor_id", actor.ActorID().String()).
			Msg("websocket upgrade failed")
	}
}
