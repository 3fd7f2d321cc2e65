package handler

import (
	"errors"
	"net/http"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/interfaces/http/dto"
	"github.com/estatehq/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler provides common response helpers for HTTP handlers
type BaseHandler struct{}

// Success sends a 200 response wrapping data
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with pagination metadata
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, meta dto.Meta) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, meta))
}

// Created sends a 201 response wrapping data
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends a 400 response for malformed requests
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeInvalidRequest, message))
}

// BindError sends a 400 response for a failed request binding, including
// per-field details when the failure came from validation.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	resp := dto.NewErrorResponse(dto.ErrCodeInvalidRequest, "Request validation failed")
	if details := middleware.ValidationDetails(err); details != nil {
		resp.Error.Details = details
	} else {
		resp.Error.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// HandleError translates an error into an HTTP response. Domain errors
// map to their registered status code; anything else becomes a 500
// without leaking internals.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(dto.GetHTTPStatus(domainErr.Code), dto.NewErrorResponse(domainErr.Code, domainErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, "Internal server error"))
}

// parseUUIDParam parses a UUID path parameter, writing a 400 on failure.
// The bool result reports whether parsing succeeded.
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}
