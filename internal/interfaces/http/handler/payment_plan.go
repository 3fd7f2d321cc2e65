package handler

import (
	"time"

	appbilling "github.com/estatehq/backend/internal/application/billing"
	"github.com/gin-gonic/gin"
)

// PaymentPlanHandler exposes payment plans over HTTP
type PaymentPlanHandler struct {
	BaseHandler
	service *appbilling.PaymentPlanService
}

// NewPaymentPlanHandler creates a new PaymentPlanHandler
func NewPaymentPlanHandler(service *appbilling.PaymentPlanService) *PaymentPlanHandler {
	return &PaymentPlanHandler{service: service}
}

// RegisterRoutes registers payment plan routes on the API group
func (h *PaymentPlanHandler) RegisterRoutes(group *gin.RouterGroup) {
	plans := group.Group("/payment-plans")
	plans.POST("", h.Create)
	plans.GET("/:id", h.Get)
	plans.POST("/:id/recalculate", h.Recalculate)
	plans.DELETE("/:id", h.Delete)

	group.GET("/deals/:dealID/payment-plan", h.GetByDeal)
	group.PUT("/installments/:id", h.UpdateInstallment)
	group.GET("/installments/due", h.ListDue)
}

// Create handles POST /payment-plans
func (h *PaymentPlanHandler) Create(c *gin.Context) {
	var req appbilling.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	plan, err := h.service.CreatePlan(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, plan)
}

// Get handles GET /payment-plans/:id
func (h *PaymentPlanHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := h.service.GetPlan(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// GetByDeal handles GET /deals/:dealID/payment-plan
func (h *PaymentPlanHandler) GetByDeal(c *gin.Context) {
	dealID, ok := h.parseUUIDParam(c, "dealID")
	if !ok {
		return
	}
	plan, err := h.service.GetPlanByDeal(c.Request.Context(), dealID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// UpdateInstallment handles PUT /installments/:id
func (h *PaymentPlanHandler) UpdateInstallment(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req appbilling.UpdateInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	plan, err := h.service.UpdateInstallment(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// Recalculate handles POST /payment-plans/:id/recalculate
func (h *PaymentPlanHandler) Recalculate(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := h.service.RecalculatePlan(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// Delete handles DELETE /payment-plans/:id
func (h *PaymentPlanHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePlan(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListDue handles GET /installments/due
func (h *PaymentPlanHandler) ListDue(c *gin.Context) {
	asOf, ok := h.parseTimeQuery(c, "as_of")
	if !ok {
		return
	}
	cutoff := time.Now().UTC()
	if asOf != nil {
		cutoff = *asOf
	}
	installments, err := h.service.ListDueInstallments(c.Request.Context(), cutoff)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, installments)
}
