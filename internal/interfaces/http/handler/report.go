package handler

import (
	"time"

	"github.com/estatehq/backend/internal/application/report"
	"github.com/estatehq/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportHandler exposes reconciliation reports over HTTP
type ReportHandler struct {
	BaseHandler
	service *report.ReconciliationService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service *report.ReconciliationService) *ReportHandler {
	return &ReportHandler{service: service}
}

// RegisterRoutes registers report routes on the API group
func (h *ReportHandler) RegisterRoutes(group *gin.RouterGroup) {
	reports := group.Group("/reports")
	reports.GET("/trial-balance", h.TrialBalance)
	reports.GET("/balance-sheet", h.BalanceSheet)
	reports.GET("/receivables-aging", h.ReceivablesAging)
	reports.GET("/bank-reconciliation", h.BankReconciliation)
}

// TrialBalance handles GET /reports/trial-balance
func (h *ReportHandler) TrialBalance(c *gin.Context) {
	asOf, ok := h.parseTimeQuery(c, "as_of")
	if !ok {
		return
	}
	result, err := h.service.TrialBalance(c.Request.Context(), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// BalanceSheet handles GET /reports/balance-sheet
func (h *ReportHandler) BalanceSheet(c *gin.Context) {
	asOf, ok := h.parseTimeQuery(c, "as_of")
	if !ok {
		return
	}
	result, err := h.service.BalanceSheet(c.Request.Context(), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ReceivablesAging handles GET /reports/receivables-aging
func (h *ReportHandler) ReceivablesAging(c *gin.Context) {
	asOf, ok := h.parseTimeQuery(c, "as_of")
	if !ok {
		return
	}
	cutoff := time.Now().UTC()
	if asOf != nil {
		cutoff = *asOf
	}
	result, err := h.service.ReceivablesAging(c.Request.Context(), cutoff)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

type bankReconciliationQuery struct {
	AccountID        string `form:"account_id" binding:"required,uuid"`
	StatementBalance string `form:"statement_balance" binding:"required"`
}

// BankReconciliation handles GET /reports/bank-reconciliation
func (h *ReportHandler) BankReconciliation(c *gin.Context) {
	var query bankReconciliationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}
	accountID, err := uuid.Parse(query.AccountID)
	if err != nil {
		h.BadRequest(c, "invalid account_id parameter")
		return
	}
	statementBalance, err := valueobject.NewMoneyFromString(query.StatementBalance)
	if err != nil {
		h.BadRequest(c, "invalid statement_balance parameter")
		return
	}
	asOf, ok := h.parseTimeQuery(c, "as_of")
	if !ok {
		return
	}
	result, err := h.service.BankReconciliation(c.Request.Context(), accountID, statementBalance.Amount(), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
