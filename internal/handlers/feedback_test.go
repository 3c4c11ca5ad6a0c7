package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtarrant/recfuse/internal/adapters"
	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/internal/services"
	"github.com/jtarrant/recfuse/pkg/models"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []models.FeedbackEvent
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, event models.FeedbackEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *capturingPublisher) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{"messages_read": int64(len(p.events))}
}

type noopAdapter struct{ name string }

func (a *noopAdapter) Name() string { return a.name }

func (a *noopAdapter) Score(_ context.Context, _, _ uuid.UUID) (float64, error) {
	return 0, adapters.ErrNoCoverage
}

func (a *noopAdapter) IncrementalUpdate(_ context.Context, _ *models.UpdateBatch) error {
	return nil
}

func testLearningBuffer() *services.LearningBuffer {
	return services.NewLearningBuffer(
		[]adapters.ModelAdapter{&noopAdapter{name: models.ModelPopularity}},
		nil, nil,
		&config.LearningConfig{
			BufferSize:    100,
			MaxBatchAge:   time.Hour,
			AgeCheckEvery: time.Hour,
			UpdateTimeout: time.Second,
		},
		testHandlerLogger(),
	)
}

func TestFeedbackHandler_Submit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	userID := uuid.New()
	itemID := uuid.New()

	tests := []struct {
		name           string
		body           string
		publishErr     error
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "valid click event",
			body: fmt.Sprintf(`{"user_id": %q, "item_id": %q, "event_type": "click"}`,
				userID, itemID),
			expectedStatus: http.StatusAccepted,
		},
		{
			name: "valid rating",
			body: fmt.Sprintf(`{"user_id": %q, "item_id": %q, "event_type": "rate", "rating": 4.5}`,
				userID, itemID),
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "malformed json",
			body:           `{"user_id": `,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST_BODY",
		},
		{
			name:           "missing item id",
			body:           fmt.Sprintf(`{"user_id": %q, "event_type": "view"}`, userID),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name: "unknown event type",
			body: fmt.Sprintf(`{"user_id": %q, "item_id": %q, "event_type": "hover"}`,
				userID, itemID),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name: "rate event without rating",
			body: fmt.Sprintf(`{"user_id": %q, "item_id": %q, "event_type": "rate"}`,
				userID, itemID),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "MISSING_RATING",
		},
		{
			name: "bus outage",
			body: fmt.Sprintf(`{"user_id": %q, "item_id": %q, "event_type": "view"}`,
				userID, itemID),
			publishErr:     fmt.Errorf("broker unreachable"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "FEEDBACK_PUBLISH_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &capturingPublisher{err: tt.publishErr}
			handler := NewFeedbackHandler(testLearningBuffer(), publisher, testHandlerLogger())

			router := gin.New()
			router.POST("/feedback", handler.Submit)

			req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedCode != "" {
				var body map[string]map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedCode, body["error"]["code"])
				assert.Empty(t, publisher.events)
			} else {
				require.Len(t, publisher.events, 1)
				assert.Equal(t, userID, publisher.events[0].UserID)
			}
		})
	}
}

func TestFeedbackHandler_TriggerUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	learning := testLearningBuffer()
	handler := NewFeedbackHandler(learning, &capturingPublisher{}, testHandlerLogger())

	router := gin.New()
	router.POST("/learning/trigger", handler.TriggerUpdate)

	t.Run("empty buffer is a no-op", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/learning/trigger", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "no_pending_events", body["status"])
	})

	t.Run("pending events produce a report", func(t *testing.T) {
		learning.Append(models.FeedbackEvent{
			UserID:    uuid.New(),
			ItemID:    uuid.New(),
			EventType: models.FeedbackView,
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/learning/trigger", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var report models.UpdateReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, 1, report.EventsConsumed)
		assert.Equal(t, services.TriggerManual, report.TriggeredBy)
	})
}

func TestFeedbackHandler_Stats(t *testing.T) {
	gin.SetMode(gin.TestMode)

	learning := testLearningBuffer()
	handler := NewFeedbackHandler(learning, &capturingPublisher{}, testHandlerLogger())

	router := gin.New()
	router.GET("/learning/stats", handler.Stats)

	learning.Append(models.FeedbackEvent{
		UserID:    uuid.New(),
		ItemID:    uuid.New(),
		EventType: models.FeedbackClick,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/learning/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Buffer models.BufferStats     `json:"buffer"`
		Bus    map[string]interface{} `json:"bus"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Buffer.PendingEvents)
	assert.Equal(t, 100, body.Buffer.Capacity)
	assert.Contains(t, body.Bus, "messages_read")
}
