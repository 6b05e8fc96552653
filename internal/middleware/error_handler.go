package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// CustomErrorHandler renders every error as the JSON envelope the API uses
func CustomErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := ""

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
	}

	if message == "" {
		switch code {
		case http.StatusNotFound:
			message = "resource not found"
		case http.StatusUnauthorized:
			message = "please log in to continue"
		case http.StatusForbidden:
			message = "you don't have permission to access this resource"
		case http.StatusBadRequest:
			message = "the request could not be processed"
		default:
			message = "something went wrong, please try again later"
		}
	}

	if code >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Request().URL.Path).Error("Request failed")
	}

	if c.Response().Committed {
		return
	}

	if jsonErr := c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
	}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
