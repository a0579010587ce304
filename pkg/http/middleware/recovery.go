package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "X402Chat/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a panic into the generic 500 body.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					l.Error("panic recovered",
						applogger.String("request_id", GetRequestID(c)),
						applogger.String("path", c.Path()),
						applogger.Error(perr),
						applogger.String("stack", string(debug.Stack())),
					)
					if !c.Response().Committed {
						err = c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
					}
				}
			}()
			return next(c)
		}
	}
}
