package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/services"
	"github.com/jtarrant/recfuse/pkg/models"
)

type RecommendationHandler struct {
	recommender services.RecommendationProvider
	logger      *logrus.Logger
}

func NewRecommendationHandler(
	recommender services.RecommendationProvider,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		recommender: recommender,
		logger:      logger,
	}
}

func (h *RecommendationHandler) Get(c *gin.Context) {
	userIDStr := c.Param("userId")
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "Invalid user ID format",
			},
		})
		return
	}

	count := 0
	if countStr := c.Query("count"); countStr != "" {
		parsed, err := strconv.Atoi(countStr)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_COUNT",
					"message": "count must be an integer between 1 and 100",
				},
			})
			return
		}
		count = parsed
	}

	req := &models.RecommendationRequest{
		UserID:       userID,
		Count:        count,
		ExperimentID: c.Query("experiment"),
	}

	response, err := h.recommender.GetRecommendations(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrUnknownExperiment) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "UNKNOWN_EXPERIMENT",
					"message": "Unknown experiment id",
				},
			})
			return
		}

		h.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to generate recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
