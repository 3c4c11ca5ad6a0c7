package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/services"
)

type ExperimentHandler struct {
	experiments *services.ExperimentService
	logger      *logrus.Logger
}

func NewExperimentHandler(experiments *services.ExperimentService, logger *logrus.Logger) *ExperimentHandler {
	return &ExperimentHandler{
		experiments: experiments,
		logger:      logger,
	}
}

// List returns all loaded experiment definitions.
func (h *ExperimentHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"experiments": h.experiments.Experiments()})
}

// GetAssignment resolves the group a user falls into. Assignment is pure,
// so this endpoint is safe to call any number of times.
func (h *ExperimentHandler) GetAssignment(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "Invalid user ID format",
			},
		})
		return
	}

	assignment, err := h.experiments.Assign(userID, c.Param("experimentId"))
	if err != nil {
		if errors.Is(err, services.ErrUnknownExperiment) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "UNKNOWN_EXPERIMENT",
					"message": "Unknown experiment id",
				},
			})
			return
		}

		h.logger.WithError(err).Error("Failed to assign experiment group")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "ASSIGNMENT_FAILED",
				"message": "Failed to assign experiment group",
			},
		})
		return
	}

	c.JSON(http.StatusOK, assignment)
}
