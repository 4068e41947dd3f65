package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AfshinJalili/rentabili/libs/httpmiddleware"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeForbidden      = "FORBIDDEN"
	codeNotFound       = "NOT_FOUND"
	codeConflict       = "CONFLICT"
	codeInternal       = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

func internalError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	logger.Error(msg,
		slog.Any("error", err),
		slog.String("path", c.FullPath()),
		slog.String("request_id", httpmiddleware.RequestIDFrom(c)),
	)
	writeError(c, http.StatusInternalServerError, codeInternal, "internal error")
}

// bindError reports the first failed validation rule, or a generic
// message for malformed JSON.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		writeError(c, http.StatusBadRequest, codeInvalidRequest, describeFieldError(verrs[0]))
		return
	}
	writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid payload")
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// storeError maps storage sentinels onto responses. Anything unknown is
// logged and reported as 500.
func storeError(c *gin.Context, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(c, http.StatusConflict, codeConflict, "already exists")
	case errors.Is(err, storage.ErrHasDependents):
		writeError(c, http.StatusConflict, codeConflict, "resource has dependent records")
	default:
		internalError(c, logger, op+" failed", err)
	}
}
