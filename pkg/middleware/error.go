package middleware

import (
	"errors"

	"licensing-controlplane/pkg/errutil"
	applog "licensing-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached to the context as the JSON error
// envelope, with the HTTP status derived from its CoreStatus.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		code := errutil.Code(err)

		var be errutil.BaseError
		if !errors.As(err, &be) {
			be = errutil.BaseError{Code: code, Message: "internal error"}
		}
		be.Code = code

		if code.HTTPStatus() >= 500 {
			applog.FromContext(c.Request.Context()).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}

		c.AbortWithStatusJSON(code.HTTPStatus(), be.JSON())
	}
}
