package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jtarrant/recfuse/internal/services"
	"github.com/jtarrant/recfuse/pkg/models"
)

type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) GetRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendationResponse), args.Error(1)
}

func testHandlerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestRecommendationHandler_Get(t *testing.T) {
	gin.SetMode(gin.TestMode)

	userID := uuid.New()
	response := &models.RecommendationResponse{
		UserID: userID,
		Items: []models.Candidate{
			{ItemID: uuid.New(), FinalScore: 0.9, Position: 1},
			{ItemID: uuid.New(), FinalScore: 0.7, Position: 2},
		},
		Weights:     models.WeightVector{Collaborative: 0.4, Content: 0.3, Popularity: 0.2, Diversity: 0.1},
		GeneratedAt: time.Now(),
	}

	tests := []struct {
		name           string
		userID         string
		query          string
		setup          func(m *MockRecommender)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:   "valid request",
			userID: userID.String(),
			setup: func(m *MockRecommender) {
				m.On("GetRecommendations", mock.Anything, mock.MatchedBy(func(req *models.RecommendationRequest) bool {
					return req.UserID == userID && req.Count == 0
				})).Return(response, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "count and experiment forwarded",
			userID: userID.String(),
			query:  "?count=5&experiment=ranking_v2",
			setup: func(m *MockRecommender) {
				m.On("GetRecommendations", mock.Anything, mock.MatchedBy(func(req *models.RecommendationRequest) bool {
					return req.Count == 5 && req.ExperimentID == "ranking_v2"
				})).Return(response, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "malformed user id",
			userID:         "not-a-uuid",
			setup:          func(m *MockRecommender) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_USER_ID",
		},
		{
			name:           "count out of range",
			userID:         userID.String(),
			query:          "?count=500",
			setup:          func(m *MockRecommender) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_COUNT",
		},
		{
			name:   "unknown experiment",
			userID: userID.String(),
			query:  "?experiment=never_defined",
			setup: func(m *MockRecommender) {
				m.On("GetRecommendations", mock.Anything, mock.Anything).
					Return(nil, services.ErrUnknownExperiment)
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "UNKNOWN_EXPERIMENT",
		},
		{
			name:   "internal failure",
			userID: userID.String(),
			setup: func(m *MockRecommender) {
				m.On("GetRecommendations", mock.Anything, mock.Anything).
					Return(nil, errors.New("graph unavailable"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "RECOMMENDATION_GENERATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recommender := new(MockRecommender)
			tt.setup(recommender)
			handler := NewRecommendationHandler(recommender, testHandlerLogger())

			router := gin.New()
			router.GET("/recommendations/:userId", handler.Get)

			req := httptest.NewRequest(http.MethodGet,
				fmt.Sprintf("/recommendations/%s%s", tt.userID, tt.query), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedCode != "" {
				var body map[string]map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedCode, body["error"]["code"])
			} else {
				var got models.RecommendationResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, userID, got.UserID)
				assert.Len(t, got.Items, 2)
			}

			recommender.AssertExpectations(t)
		})
	}
}
