package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/services"
	"github.com/jtarrant/recfuse/pkg/models"
)

// FeedbackPublisher hands accepted events to the feedback bus and exposes
// its transport counters.
type FeedbackPublisher interface {
	Publish(ctx context.Context, event models.FeedbackEvent) error
	Stats() map[string]interface{}
}

// FeedbackHandler accepts feedback events and exposes the learning loop's
// manual trigger and stats. Events go through the feedback bus; the
// consumer side feeds them into the learning buffer, so HTTP-submitted and
// externally produced events follow the same path.
type FeedbackHandler struct {
	learning  *services.LearningBuffer
	bus       FeedbackPublisher
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewFeedbackHandler(
	learning *services.LearningBuffer,
	bus FeedbackPublisher,
	logger *logrus.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		learning:  learning,
		bus:       bus,
		validator: validator.New(),
		logger:    logger,
	}
}

func (h *FeedbackHandler) Submit(c *gin.Context) {
	var event models.FeedbackEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := h.validator.Struct(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	if event.EventType == models.FeedbackRate && event.Rating == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_RATING",
				"message": "rate events require a rating",
			},
		})
		return
	}

	if err := h.bus.Publish(c.Request.Context(), event); err != nil {
		h.logger.WithError(err).Error("Failed to publish feedback event")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_PUBLISH_FAILED",
				"message": "Failed to accept feedback event",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// TriggerUpdate forces an incremental update of whatever feedback is
// pending. An empty buffer is a no-op.
func (h *FeedbackHandler) TriggerUpdate(c *gin.Context) {
	report := h.learning.TriggerNow(c.Request.Context())
	if report == nil {
		c.JSON(http.StatusOK, gin.H{"status": "no_pending_events"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *FeedbackHandler) Stats(c *gin.Context) {
	response := gin.H{
		"buffer": h.learning.Stats(),
		"bus":    h.bus.Stats(),
	}
	if report := h.learning.LastReport(); report != nil {
		response["last_update"] = report
	}

	c.JSON(http.StatusOK, response)
}
