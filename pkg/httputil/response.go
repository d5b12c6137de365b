package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Code    string       `json:"code,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var tagMessages = map[string]string{
	"required":      "Field is required",
	"email":         "Invalid email format",
	"uuid":          "Must be a valid id",
	"min":           "Value is too small",
	"max":           "Value is too large",
	"gte":           "Value is too small",
	"lte":           "Value is too large",
	"transfer_type": "Must be 'emergency' or 'non-emergency'",
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Status: "success", Data: data})
}

// RespondWithError renders err with the status of its error code. Errors
// without a code are logged and hidden behind a generic 500.
func RespondWithError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{
			Status:  "error",
			Message: "Validation failed",
			Code:    apperrors.ErrBadRequest.String(),
			Errors:  FieldErrors(verrs),
		})
		return
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString("request_id")).
			Msg("Unhandled request error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
			Status:  "error",
			Message: "Internal server error",
			Code:    apperrors.ErrInternal.String(),
		})
		return
	}

	status := apperrors.HTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString("request_id")).
			Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, Response{
		Status:  "error",
		Message: appErr.Message,
		Code:    appErr.Code.String(),
	})
}

// FieldErrors converts validator output into the response field list.
func FieldErrors(errs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg := tagMessages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
