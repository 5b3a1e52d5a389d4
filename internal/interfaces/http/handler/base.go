// Package handler holds the gin handlers of the marketplace API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/logger"
	"github.com/labfix/backend/internal/interfaces/http/dto"
	"github.com/labfix/backend/internal/interfaces/http/middleware"
)

// providerErrorMessage replaces upstream detail in production answers.
const providerErrorMessage = "Billing provider request failed"

// BaseHandler provides common handler utilities
type BaseHandler struct {
	// HideProviderDetail keeps billing provider messages out of responses.
	// They are still logged.
	HideProviderDetail bool
}

// actor returns the authenticated caller set by the JWT middleware.
func actor(c *gin.Context) (workorder.Actor, error) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		return workorder.Actor{}, shared.AuthenticationError("bearer token is required")
	}
	id, err := claims.UserUUID()
	if err != nil {
		return workorder.Actor{}, shared.AuthenticationError("token user_id is not a valid id")
	}
	return workorder.Actor{ID: id, Role: claims.IdentityRole()}, nil
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ValidationError("id %q must be a positive integer", raw)
	}
	return id, nil
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// HandleError maps err to a status and error body. Domain errors keep their
// message; anything else answers 500 with a generic message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Request body exceeds maximum allowed size")
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		logger.Enrich(c.Request.Context(), logger.GetGinLogger(c)).Error("Unhandled error", zap.Error(err))
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
		return
	}

	code := dto.NormalizeErrorCode(domainErr.Code)
	status := dto.GetHTTPStatus(code)
	message := domainErr.Message
	if status >= http.StatusInternalServerError {
		logger.Enrich(c.Request.Context(), logger.GetGinLogger(c)).Error("Request failed",
			zap.String("code", code),
			zap.Error(err))
		if code == dto.ErrCodeProvider && h.HideProviderDetail {
			message = providerErrorMessage
		}
	}
	h.Error(c, status, code, message)
}

// bindJSON decodes and validates the JSON body into req. On failure it
// writes the error response and returns false.
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

// bindQuery binds and validates query parameters into req.
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) bindError(c *gin.Context, err error) {
	if details := middleware.ValidationDetails(err); len(details) > 0 {
		parts := make([]string, 0, len(details))
		for _, d := range details {
			parts = append(parts, d.Field+": "+d.Message)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			strings.Join(parts, "; "),
			middleware.GetRequestID(c),
			details,
		))
		return
	}

	var (
		maxErr    *http.MaxBytesError
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &maxErr):
		h.HandleError(c, err)
	case errors.Is(err, io.EOF):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "request body is required")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation,
			fmt.Sprintf("%s must be %s", typeErr.Field, describeType(typeErr.Type)))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "request body is not valid JSON")
	default:
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "invalid request: "+err.Error())
	}
}

var (
	numericIDType = reflect.TypeOf(dto.NumericID(0))
	decimalType   = reflect.TypeOf(decimal.Decimal{})
)

func describeType(t reflect.Type) string {
	switch {
	case t == nil:
		return "a valid value"
	case t == numericIDType:
		return "a numeric id"
	case t == decimalType:
		return "a decimal amount"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	default:
		return "a valid " + t.Kind().String()
	}
}
