package handler

import (
	"context"

	appacct "github.com/estatehq/backend/internal/application/accounting"
	"github.com/estatehq/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VoucherHandler exposes the voucher workflow over HTTP
type VoucherHandler struct {
	BaseHandler
	service *appacct.VoucherService
}

// NewVoucherHandler creates a new VoucherHandler
func NewVoucherHandler(service *appacct.VoucherService) *VoucherHandler {
	return &VoucherHandler{service: service}
}

// RegisterRoutes registers voucher routes on the API group
func (h *VoucherHandler) RegisterRoutes(group *gin.RouterGroup) {
	vouchers := group.Group("/vouchers")
	vouchers.POST("", h.Create)
	vouchers.GET("", h.List)
	vouchers.GET("/:id", h.Get)
	vouchers.PUT("/:id", h.Update)
	vouchers.DELETE("/:id", h.Delete)
	vouchers.POST("/:id/submit", h.Submit)
	vouchers.POST("/:id/approve", h.Approve)
	vouchers.POST("/:id/post", h.Post)
	vouchers.POST("/:id/reverse", h.Reverse)
	vouchers.POST("/:id/attachments", h.AddAttachment)
}

// Create handles POST /vouchers
func (h *VoucherHandler) Create(c *gin.Context) {
	var req appacct.CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	voucher, err := h.service.CreateVoucher(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, voucher)
}

// List handles GET /vouchers
func (h *VoucherHandler) List(c *gin.Context) {
	var filter appacct.VoucherListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.service.ListVouchers(c.Request.Context(), filter)
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

// Get handles GET /vouchers/:id
func (h *VoucherHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	voucher, err := h.service.GetVoucher(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, voucher)
}

// Update handles PUT /vouchers/:id
func (h *VoucherHandler) Update(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req appacct.UpdateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	voucher, err := h.service.UpdateVoucher(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, voucher)
}

// Delete handles DELETE /vouchers/:id
func (h *VoucherHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteVoucher(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Submit handles POST /vouchers/:id/submit
func (h *VoucherHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.SubmitVoucher)
}

type approveVoucherRequest struct {
	ApprovedBy uuid.UUID `json:"approved_by" binding:"required"`
}

// Approve handles POST /vouchers/:id/approve
func (h *VoucherHandler) Approve(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req approveVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	voucher, err := h.service.ApproveVoucher(c.Request.Context(), id, req.ApprovedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, voucher)
}

// Post handles POST /vouchers/:id/post
func (h *VoucherHandler) Post(c *gin.Context) {
	h.transition(c, h.service.PostVoucher)
}

// Reverse handles POST /vouchers/:id/reverse
func (h *VoucherHandler) Reverse(c *gin.Context) {
	h.transition(c, h.service.ReverseVoucher)
}

type addAttachmentRequest struct {
	FileName   string `json:"file_name" binding:"required,max=255"`
	StorageKey string `json:"storage_key" binding:"required,max=500"`
}

// AddAttachment handles POST /vouchers/:id/attachments
func (h *VoucherHandler) AddAttachment(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req addAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	voucher, err := h.service.AddAttachment(c.Request.Context(), id, req.FileName, req.StorageKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, voucher)
}

func (h *VoucherHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*appacct.VoucherResponse, error)) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	voucher, err := fn(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, voucher)
}
