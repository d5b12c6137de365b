package medical

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carebridge/internal/handler"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/service/medical"
	"github.com/jwalitptl/carebridge/internal/service/summary"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/httputil"
)

type Handler struct {
	records *medical.RecordService
	reports *medical.ReportService
	summary *summary.Service
}

func NewHandler(records *medical.RecordService, reports *medical.ReportService, summary *summary.Service) *Handler {
	return &Handler{records: records, reports: reports, summary: summary}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients/:id")
	{
		patients.GET("/records", h.ListHealthRecords)
		patients.POST("/records", h.CreateHealthRecord)
		patients.GET("/reports", h.ListReports)
		patients.POST("/reports", h.UploadReport)
		patients.GET("/summary", h.GenerateSummary)
	}

	records := r.Group("/records")
	{
		records.GET("/:id", h.GetHealthRecord)
		records.DELETE("/:id", h.DeleteHealthRecord)
	}

	reports := r.Group("/reports")
	{
		reports.GET("/:id/signed-url", h.GetSignedURL)
		reports.DELETE("/:id", h.DeleteReport)
	}
}

func (h *Handler) CreateHealthRecord(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.CreateHealthRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	rec, err := h.records.Create(c.Request.Context(), middleware.ActorFrom(c), patientID, medical.Vitals{
		BloodPressureSystolic:  req.BloodPressureSystolic,
		BloodPressureDiastolic: req.BloodPressureDiastolic,
		HeartRate:              req.HeartRate,
		SugarLevel:             req.SugarLevel,
		RecordedAt:             req.RecordedAt,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rec))
}

func (h *Handler) ListHealthRecords(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	records, err := h.records.List(c.Request.Context(), middleware.ActorFrom(c), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) GetHealthRecord(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	rec, err := h.records.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}

func (h *Handler) DeleteHealthRecord(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.records.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadReport takes multipart fields report_name, report_type and file.
func (h *Handler) UploadReport(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("file is required", err))
		return
	}
	file, err := fh.Open()
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("could not read file", err))
		return
	}
	defer file.Close()

	in := medical.UploadInput{
		ReportName:  c.PostForm("report_name"),
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        file,
	}
	if t := c.PostForm("report_type"); t != "" {
		in.ReportType = &t
	}

	report, err := h.reports.Upload(c.Request.Context(), middleware.ActorFrom(c), patientID, in)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(report))
}

func (h *Handler) ListReports(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	reports, err := h.reports.List(c.Request.Context(), middleware.ActorFrom(c), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(reports))
}

func (h *Handler) GetSignedURL(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	signed, err := h.reports.SignedURL(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(signed))
}

func (h *Handler) DeleteReport(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.reports.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GenerateSummary(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	s, err := h.summary.Generate(c.Request.Context(), middleware.ActorFrom(c), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(s))
}
