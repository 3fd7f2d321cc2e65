package handler

import (
	appbilling "github.com/estatehq/backend/internal/application/billing"
	"github.com/estatehq/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ReceiptHandler exposes payment confirmation over HTTP
type ReceiptHandler struct {
	BaseHandler
	service *appbilling.ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(service *appbilling.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{service: service}
}

// RegisterRoutes registers receipt routes on the API group
func (h *ReceiptHandler) RegisterRoutes(group *gin.RouterGroup) {
	receipts := group.Group("/receipts")
	receipts.POST("", h.Create)
	receipts.GET("", h.List)
	receipts.GET("/:id", h.Get)
	receipts.DELETE("/:id", h.Delete)
}

// Create handles POST /receipts
func (h *ReceiptHandler) Create(c *gin.Context) {
	var req appbilling.CreateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	summary, err := h.service.CreateReceipt(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, summary)
}

// List handles GET /receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	var filter appbilling.ReceiptListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.service.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, dto.Meta{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    result.Total,
	})
}

// Get handles GET /receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	receipt, err := h.service.GetReceipt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, receipt)
}

// Delete handles DELETE /receipts/:id
func (h *ReceiptHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteReceipt(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
