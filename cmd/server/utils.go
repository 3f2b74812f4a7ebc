package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lychee-technology/eav"
)

// APIResponse is the envelope of every API reply.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func writeSuccess(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// writeFail reports err, exposing structured mapping errors as-is.
func writeFail(c *gin.Context, err error, message string) {
	resp := APIResponse{Status: "error", Message: message}
	var e *eav.Error
	if errors.As(err, &e) {
		resp.Error = e
	} else if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case eav.IsNotFound(err):
		return http.StatusNotFound
	case eav.IsForbidden(err):
		return http.StatusForbidden
	case eav.IsValidationError(err):
		return http.StatusBadRequest
	case eav.IsTypeMismatch(err):
		return http.StatusUnprocessableEntity
	case err == nil:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseEntityID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, APIResponse{Status: "error", Message: "invalid entity id", Error: c.Param("id")})
		return 0, false
	}
	return id, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
