package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/handler"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/service/patient"
	"github.com/jwalitptl/carebridge/pkg/httputil"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("/me", h.EnsurePatientRecord)
		patients.GET("", h.ListAdmittedPatients)
		patients.POST("/admit", h.AdmitPatient)
		patients.GET("/:id", h.GetPatient)
	}
}

func (h *Handler) EnsurePatientRecord(c *gin.Context) {
	p, err := h.service.EnsurePatientRecord(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) ListAdmittedPatients(c *gin.Context) {
	list, err := h.service.ListAdmittedPatients(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) AdmitPatient(c *gin.Context) {
	var req model.AdmitPatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	in := patient.AdmitInput{Email: req.Email}
	if req.PatientID != "" {
		id := uuid.MustParse(req.PatientID)
		in.PatientID = &id
	}

	p, err := h.service.AdmitPatient(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.GetPatient(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

