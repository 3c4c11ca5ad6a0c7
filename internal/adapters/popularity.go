package adapters

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jtarrant/recfuse/pkg/models"
)

// PopularityAdapter scores items by a blend of rating volume and rating
// quality. Scores are user-independent: the same item scores the same for
// every user.
type PopularityAdapter struct {
	mu sync.RWMutex

	counts     map[uuid.UUID]int
	ratingSums map[uuid.UUID]float64
	ratedCount map[uuid.UUID]int
	maxCount   int

	// countWeight balances rating volume against average rating quality.
	countWeight float64
}

func NewPopularityAdapter() *PopularityAdapter {
	return &PopularityAdapter{
		counts:      make(map[uuid.UUID]int),
		ratingSums:  make(map[uuid.UUID]float64),
		ratedCount:  make(map[uuid.UUID]int),
		countWeight: 0.7,
	}
}

func (a *PopularityAdapter) Name() string {
	return models.ModelPopularity
}

func (a *PopularityAdapter) Score(ctx context.Context, userID, itemID uuid.UUID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	count, ok := a.counts[itemID]
	if !ok || a.maxCount == 0 {
		return 0, ErrNoCoverage
	}

	normalizedCount := float64(count) / float64(a.maxCount)

	// Average rating normalized from the 1-5 scale to [0,1]; items with
	// only implicit engagement fall back to a neutral quality signal.
	normalizedAvg := 0.5
	if rated := a.ratedCount[itemID]; rated > 0 {
		avg := a.ratingSums[itemID] / float64(rated)
		normalizedAvg = (avg - 1.0) / 4.0
	}

	return a.countWeight*normalizedCount + (1-a.countWeight)*normalizedAvg, nil
}

func (a *PopularityAdapter) IncrementalUpdate(ctx context.Context, batch *models.UpdateBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, event := range batch.Events {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.counts[event.ItemID]++
		if a.counts[event.ItemID] > a.maxCount {
			a.maxCount = a.counts[event.ItemID]
		}

		if event.EventType == models.FeedbackRate && event.Rating != nil {
			a.ratingSums[event.ItemID] += *event.Rating
			a.ratedCount[event.ItemID]++
		}
	}

	return nil
}

// ObserveRating seeds the adapter from historical data, outside the
// incremental update path.
func (a *PopularityAdapter) ObserveRating(itemID uuid.UUID, rating float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counts[itemID]++
	if a.counts[itemID] > a.maxCount {
		a.maxCount = a.counts[itemID]
	}
	a.ratingSums[itemID] += rating
	a.ratedCount[itemID]++
}
