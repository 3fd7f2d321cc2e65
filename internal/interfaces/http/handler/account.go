package handler

import (
	"time"

	appacct "github.com/estatehq/backend/internal/application/accounting"
	"github.com/gin-gonic/gin"
)

// AccountHandler exposes the chart of accounts over HTTP
type AccountHandler struct {
	BaseHandler
	service *appacct.AccountService
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service *appacct.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// RegisterRoutes registers account routes on the API group
func (h *AccountHandler) RegisterRoutes(group *gin.RouterGroup) {
	accounts := group.Group("/accounts")
	accounts.POST("", h.Create)
	accounts.GET("", h.List)
	accounts.GET("/:id", h.Get)
	accounts.PUT("/:id", h.Update)
	accounts.DELETE("/:id", h.Delete)
	accounts.GET("/:id/balance", h.Balance)
}

// Create handles POST /accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req appacct.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	account, err := h.service.CreateAccount(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, account)
}

// List handles GET /accounts
func (h *AccountHandler) List(c *gin.Context) {
	var filter appacct.AccountListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	accounts, err := h.service.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, accounts)
}

// Get handles GET /accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, account)
}

// Update handles PUT /accounts/:id
func (h *AccountHandler) Update(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req appacct.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	account, err := h.service.UpdateAccount(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, account)
}

// Delete handles DELETE /accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAccount(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Balance handles GET /accounts/:id/balance
func (h *AccountHandler) Balance(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	asOf, ok := h.parseTimeQuery(c, "as_of")
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(c.Request.Context(), id, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// parseTimeQuery parses an optional timestamp query parameter, accepting
// RFC3339 or a bare date. The bool result reports whether parsing
// succeeded; an absent parameter yields (nil, true).
func (h *BaseHandler) parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	h.BadRequest(c, "invalid "+name+" parameter")
	return nil, false
}
