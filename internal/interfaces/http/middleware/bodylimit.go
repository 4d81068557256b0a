package middleware

import (
	"net/http"

	"github.com/erp/bankrec/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit returns a middleware that limits request body size. Statement
// uploads are the largest requests this API takes, so the limit follows the
// import file-size configuration.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeValidation, "Request body exceeds maximum allowed size"))
			return
		}

		// Streamed bodies without Content-Length are cut off at the limit.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
