// Package respond writes the JSON envelope shared by every /api/v1 endpoint:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": {"code": "...", "message": "...", "details": {...}}}
package respond

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/apperrors"
)

// ErrorBody is the error member of a failed response
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Envelope is the body of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// OK writes data with status 200
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes data with status 201
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Error writes err with the status of its kind. Unclassified errors are
// logged and reported without their message.
func Error(c *gin.Context, err error) {
	ae, ok := apperrors.As(err)
	if !ok {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		Abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	status := apperrors.HTTPStatus(ae)
	msg := ae.Message
	if ae.Kind == apperrors.KindStorage {
		slog.ErrorContext(c.Request.Context(), "storage operation failed",
			"path", c.FullPath(), "error", err)
	} else if ae.Err != nil {
		msg = ae.Error()
	}
	c.AbortWithStatusJSON(status, Envelope{
		Error: &ErrorBody{Code: ae.Code, Message: msg, Details: ae.Details},
	})
}

// Abort writes a failure without an error value
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}
