package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtarrant/recfuse/internal/services"
	"github.com/jtarrant/recfuse/pkg/models"
)

func testExperimentHandler(t *testing.T) *ExperimentHandler {
	t.Helper()

	experiments, err := services.NewExperimentServiceFromDefinitions([]models.ExperimentDefinition{
		{
			ExperimentID: "ranking_v2",
			Active:       true,
			Groups: []models.ExperimentGroup{
				{Name: "control", WeightFraction: 0.5},
				{Name: "treatment", WeightFraction: 0.5},
			},
		},
		{
			ExperimentID: "paused",
			Active:       false,
			Groups: []models.ExperimentGroup{
				{Name: "treatment", WeightFraction: 1.0},
			},
		},
	}, testHandlerLogger())
	require.NoError(t, err)

	return NewExperimentHandler(experiments, testHandlerLogger())
}

func TestExperimentHandler_List(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := testExperimentHandler(t)
	router := gin.New()
	router.GET("/experiments", handler.List)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/experiments", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Experiments map[string]models.ExperimentDefinition `json:"experiments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Experiments, 2)
	assert.Contains(t, body.Experiments, "ranking_v2")
}

func TestExperimentHandler_GetAssignment(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := testExperimentHandler(t)
	router := gin.New()
	router.GET("/experiments/:experimentId/assignment/:userId", handler.GetAssignment)

	get := func(experimentID, userID string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			fmt.Sprintf("/experiments/%s/assignment/%s", experimentID, userID), nil))
		return w
	}

	t.Run("active experiment assigns a defined group", func(t *testing.T) {
		w := get("ranking_v2", uuid.New().String())
		require.Equal(t, http.StatusOK, w.Code)

		var assignment models.GroupAssignment
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &assignment))
		assert.Equal(t, "ranking_v2", assignment.ExperimentID)
		assert.Contains(t, []string{"control", "treatment"}, assignment.Group)
	})

	t.Run("inactive experiment routes to default", func(t *testing.T) {
		w := get("paused", uuid.New().String())
		require.Equal(t, http.StatusOK, w.Code)

		var assignment models.GroupAssignment
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &assignment))
		assert.Equal(t, models.DefaultGroup, assignment.Group)
	})

	t.Run("unknown experiment is a 404", func(t *testing.T) {
		w := get("never_defined", uuid.New().String())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed user id is a 400", func(t *testing.T) {
		w := get("ranking_v2", "not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
