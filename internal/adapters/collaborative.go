package adapters

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/jtarrant/recfuse/pkg/models"
)

const defaultHistoryWindow = 10000

type ratingRecord struct {
	userID uuid.UUID
	itemID uuid.UUID
	rating float64
}

// CollaborativeAdapter predicts ratings from user and item bias terms over
// a sliding window of recent ratings: prediction = global mean + user bias
// + item bias, clipped to the 1-5 rating scale. Incremental updates append
// to the window and age out the oldest ratings, so the estimator tracks
// recent taste without full retraining.
type CollaborativeAdapter struct {
	mu sync.RWMutex

	window     []ratingRecord
	maxHistory int

	globalMean float64
	userMeans  map[uuid.UUID]float64
	itemMeans  map[uuid.UUID]float64
}

func NewCollaborativeAdapter() *CollaborativeAdapter {
	return &CollaborativeAdapter{
		maxHistory: defaultHistoryWindow,
		userMeans:  make(map[uuid.UUID]float64),
		itemMeans:  make(map[uuid.UUID]float64),
	}
}

func (a *CollaborativeAdapter) Name() string {
	return models.ModelCollaborative
}

func (a *CollaborativeAdapter) Score(ctx context.Context, userID, itemID uuid.UUID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	userMean, known := a.userMeans[userID]
	if !known {
		// No personal rating history: peer-similarity has nothing to say.
		return 0, ErrNoCoverage
	}

	userBias := userMean - a.globalMean
	itemBias := 0.0
	if itemMean, ok := a.itemMeans[itemID]; ok {
		itemBias = itemMean - a.globalMean
	}

	predicted := a.globalMean + userBias + itemBias
	if predicted < 1.0 {
		predicted = 1.0
	} else if predicted > 5.0 {
		predicted = 5.0
	}

	return predicted, nil
}

func (a *CollaborativeAdapter) IncrementalUpdate(ctx context.Context, batch *models.UpdateBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	appended := false
	for _, event := range batch.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if event.EventType != models.FeedbackRate || event.Rating == nil {
			continue
		}
		a.window = append(a.window, ratingRecord{
			userID: event.UserID,
			itemID: event.ItemID,
			rating: *event.Rating,
		})
		appended = true
	}

	if !appended {
		return nil
	}

	// Sliding window: keep the most recent ratings only.
	if len(a.window) > a.maxHistory {
		a.window = a.window[len(a.window)-a.maxHistory:]
	}

	a.refit()
	return nil
}

// ObserveRating seeds the window from historical data.
func (a *CollaborativeAdapter) ObserveRating(userID, itemID uuid.UUID, rating float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, ratingRecord{userID: userID, itemID: itemID, rating: rating})
	if len(a.window) > a.maxHistory {
		a.window = a.window[len(a.window)-a.maxHistory:]
	}
	a.refit()
}

// refit recomputes global/user/item means from the window. Caller holds the
// write lock.
func (a *CollaborativeAdapter) refit() {
	all := make([]float64, 0, len(a.window))
	userRatings := make(map[uuid.UUID][]float64)
	itemRatings := make(map[uuid.UUID][]float64)

	for _, r := range a.window {
		all = append(all, r.rating)
		userRatings[r.userID] = append(userRatings[r.userID], r.rating)
		itemRatings[r.itemID] = append(itemRatings[r.itemID], r.rating)
	}

	if len(all) == 0 {
		a.globalMean = 0
		a.userMeans = make(map[uuid.UUID]float64)
		a.itemMeans = make(map[uuid.UUID]float64)
		return
	}

	a.globalMean = stat.Mean(all, nil)

	a.userMeans = make(map[uuid.UUID]float64, len(userRatings))
	for userID, ratings := range userRatings {
		a.userMeans[userID] = stat.Mean(ratings, nil)
	}

	a.itemMeans = make(map[uuid.UUID]float64, len(itemRatings))
	for itemID, ratings := range itemRatings {
		a.itemMeans[itemID] = stat.Mean(ratings, nil)
	}
}
