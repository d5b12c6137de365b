package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/httputil"
)

// ParamID parses the named path parameter as a uuid. On failure it writes
// a 400 and returns false.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds and validates the request body. On failure it writes the
// error response and returns false.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			err = apperrors.BadRequest("Invalid request body", err)
		}
		httputil.RespondWithError(c, err)
		return false
	}
	return true
}
