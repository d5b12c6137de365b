package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebridge/internal/handler"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
)

// Recovery turns a handler panic into a 500 envelope. The panic value is
// logged but never echoed to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			evt := log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("route", c.FullPath()).
				Str("request_id", c.GetString(ContextRequestID))
			if actor, ok := c.Get(ContextActor); ok {
				evt = evt.Interface("actor", actor)
			}
			evt.Msg("recovered from panic")

			c.AbortWithStatusJSON(http.StatusInternalServerError,
				handler.NewErrorResponse(apperrors.ErrInternal.String(), "Internal server error"))
		}()
		c.Next()
	}
}
