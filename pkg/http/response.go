package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// InternalErrorMessage is the only text a 500 ever exposes.
const InternalErrorMessage = "Internal server error"

// JSONResponse writes data as-is with the given status.
func JSONResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, data)
}

// SuccessResponse writes a 200 response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// ErrorResponse writes {"error": message} with the given status.
func ErrorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorBody{Error: message})
}

// InternalServerErrorResponse writes the generic 500 body.
func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, InternalErrorMessage)
}

// AppErrorResponse writes an AppError as a flat body: "error" plus its params.
// Anything that is not an AppError becomes the generic 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return InternalServerErrorResponse(c)
	}

	body := make(map[string]interface{}, len(appErr.Params)+1)
	for k, v := range appErr.Params {
		body[k] = v
	}
	body["error"] = appErr.Message
	return c.JSON(appErr.Status, body)
}

// ValidationErrorResponse writes a 400 with the first validation message as "error"
// and the full list under "details".
func ValidationErrorResponse(c echo.Context, errs []ValidationError) error {
	msg := "Invalid request"
	if len(errs) > 0 && errs[0].Message != "" {
		msg = errs[0].Message
	}
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error":   msg,
		"details": errs,
	})
}
