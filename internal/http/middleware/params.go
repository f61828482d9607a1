package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/validate"
)

const msgInvalidParamID = "El ID proporcionado no es válido"

// ValidateUUIDParam rejects requests whose path parameter name is not a UUID.
func ValidateUUIDParam(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validate.IsUUID(c.Param(name)) {
			Fail(c, apperr.Validation(msgInvalidParamID).WithDetail("param", name))
			return
		}
		c.Next()
	}
}
