package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carebridge/internal/handler"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/pkg/httputil"
)

type Directory interface {
	ListHospitals(ctx context.Context) ([]*model.Hospital, error)
}

type Handler struct {
	directory Directory
}

func NewHandler(directory Directory) *Handler {
	return &Handler{directory: directory}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.Me)
	r.GET("/hospitals", h.ListHospitals)
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(middleware.UserFrom(c)))
}

func (h *Handler) ListHospitals(c *gin.Context) {
	hospitals, err := h.directory.ListHospitals(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(hospitals))
}
