package transfer

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/handler"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/model"
	transfersvc "github.com/jwalitptl/carebridge/internal/service/transfer"
	"github.com/jwalitptl/carebridge/pkg/httputil"
)

type Service interface {
	Request(ctx context.Context, actor model.Actor, in transfersvc.RequestInput) (*model.Transfer, error)
	Accept(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.AcceptResult, error)
	Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Transfer, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Transfer, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Transfer, error)
	List(ctx context.Context, actor model.Actor) ([]*model.Transfer, error)
	History(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Transfer, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	transfers := r.Group("/transfers")
	{
		transfers.POST("", h.RequestTransfer)
		transfers.GET("", h.ListTransfers)
		transfers.GET("/:id", h.GetTransfer)
		transfers.POST("/:id/accept", h.AcceptTransfer)
		transfers.POST("/:id/complete", h.CompleteTransfer)
		transfers.POST("/:id/cancel", h.CancelTransfer)
	}
	r.GET("/patients/:id/transfers", h.TransferHistory)
}

func (h *Handler) RequestTransfer(c *gin.Context) {
	var req model.CreateTransferRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	t, err := h.service.Request(c.Request.Context(), middleware.ActorFrom(c), transfersvc.RequestInput{
		PatientID:    uuid.MustParse(req.PatientID),
		ToHospitalID: uuid.MustParse(req.ToHospitalID),
		Type:         model.TransferType(req.TransferType),
		Reason:       req.Reason,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(t))
}

func (h *Handler) ListTransfers(c *gin.Context) {
	transfers, err := h.service.List(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(transfers))
}

func (h *Handler) GetTransfer(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	t, err := h.service.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

// AcceptTransfer answers 200 even when the admission step failed; the
// admission block of the body says so.
func (h *Handler) AcceptTransfer(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.Accept(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) CompleteTransfer(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *Handler) CancelTransfer(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, model.Actor, uuid.UUID) (*model.Transfer, error)) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	t, err := fn(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) TransferHistory(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	transfers, err := h.service.History(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(transfers))
}
