package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ItemWriter persists item metadata in the candidate store.
type ItemWriter interface {
	UpsertItem(ctx context.Context, itemID uuid.UUID, attributes []string) error
}

// AttributeIndex is the in-memory attribute view the content model scores
// from. It is updated alongside the store so new metadata takes effect
// without a restart.
type AttributeIndex interface {
	SetItemAttributes(itemID uuid.UUID, attributes []string)
}

// ItemHandler accepts item metadata writes.
type ItemHandler struct {
	store  ItemWriter
	index  AttributeIndex
	logger *logrus.Logger
}

func NewItemHandler(store ItemWriter, index AttributeIndex, logger *logrus.Logger) *ItemHandler {
	return &ItemHandler{
		store:  store,
		index:  index,
		logger: logger,
	}
}

type upsertItemRequest struct {
	Attributes []string `json:"attributes" binding:"required"`
}

// Upsert writes an item's attribute set to the candidate store and the
// content model's index.
func (h *ItemHandler) Upsert(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ITEM_ID",
				"message": "Invalid item ID format",
			},
		})
		return
	}

	var req upsertItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := h.store.UpsertItem(c.Request.Context(), itemID, req.Attributes); err != nil {
		h.logger.WithError(err).WithField("item_id", itemID).Error("Failed to upsert item")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "ITEM_UPSERT_FAILED",
				"message": "Failed to store item metadata",
			},
		})
		return
	}

	h.index.SetItemAttributes(itemID, req.Attributes)

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
