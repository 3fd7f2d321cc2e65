package handler

import (
	"time"

	appacct "github.com/estatehq/backend/internal/application/accounting"
	"github.com/gin-gonic/gin"
)

// JournalHandler exposes the journal over HTTP
type JournalHandler struct {
	BaseHandler
	service *appacct.JournalService
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(service *appacct.JournalService) *JournalHandler {
	return &JournalHandler{service: service}
}

// RegisterRoutes registers journal routes on the API group
func (h *JournalHandler) RegisterRoutes(group *gin.RouterGroup) {
	entries := group.Group("/journal-entries")
	entries.POST("", h.Post)
	entries.GET("", h.List)
	entries.GET("/:id", h.Get)
	entries.POST("/:id/reverse", h.Reverse)

	group.PUT("/journal-lines/:id/cleared", h.SetLineCleared)
}

// Post handles POST /journal-entries
func (h *JournalHandler) Post(c *gin.Context) {
	var req appacct.PostEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	entry, err := h.service.PostManualEntry(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, entry)
}

// List handles GET /journal-entries
func (h *JournalHandler) List(c *gin.Context) {
	var filter appacct.JournalListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	entries, err := h.service.ListEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// Get handles GET /journal-entries/:id
func (h *JournalHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

type reverseEntryRequest struct {
	ReversalDate *time.Time `json:"reversal_date"`
}

// Reverse handles POST /journal-entries/:id/reverse
func (h *JournalHandler) Reverse(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req reverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	reversalDate := time.Now().UTC()
	if req.ReversalDate != nil {
		reversalDate = *req.ReversalDate
	}
	entry, err := h.service.ReverseEntry(c.Request.Context(), id, reversalDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, entry)
}

type setLineClearedRequest struct {
	Cleared *bool `json:"cleared" binding:"required"`
}

// SetLineCleared handles PUT /journal-lines/:id/cleared
func (h *JournalHandler) SetLineCleared(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req setLineClearedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if err := h.service.MarkLineCleared(c.Request.Context(), id, *req.Cleared); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
