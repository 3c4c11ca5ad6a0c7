package adapters

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/jtarrant/recfuse/pkg/models"
)

type ratingAggregate struct {
	count int
	sum   float64
}

func (r ratingAggregate) avg() float64 {
	if r.count == 0 {
		return 3.5
	}
	return r.sum / float64(r.count)
}

// RankerAdapter is a learned ranker distilled to a fixed-coefficient
// logistic scorer over user/item engagement features. The coefficients are
// exported from offline training; incremental updates keep the feature
// aggregates fresh and nudge the bias toward the observed positive rate.
type RankerAdapter struct {
	mu sync.RWMutex

	userStats map[uuid.UUID]ratingAggregate
	itemStats map[uuid.UUID]ratingAggregate

	// Feature coefficients: user avg, log1p(user count), item avg,
	// log1p(item count).
	wUserAvg   float64
	wUserCount float64
	wItemAvg   float64
	wItemCount float64
	bias       float64
}

func NewRankerAdapter() *RankerAdapter {
	return &RankerAdapter{
		userStats:  make(map[uuid.UUID]ratingAggregate),
		itemStats:  make(map[uuid.UUID]ratingAggregate),
		wUserAvg:   0.35,
		wUserCount: 0.10,
		wItemAvg:   0.55,
		wItemCount: 0.20,
		bias:       -2.6,
	}
}

func (a *RankerAdapter) Name() string {
	return models.ModelRanker
}

func (a *RankerAdapter) Score(ctx context.Context, userID, itemID uuid.UUID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	user, userKnown := a.userStats[userID]
	item, itemKnown := a.itemStats[itemID]
	if !userKnown && !itemKnown {
		return 0, ErrNoCoverage
	}

	z := a.bias +
		a.wUserAvg*user.avg() +
		a.wUserCount*math.Log1p(float64(user.count)) +
		a.wItemAvg*item.avg() +
		a.wItemCount*math.Log1p(float64(item.count))

	return 1.0 / (1.0 + math.Exp(-z)), nil
}

func (a *RankerAdapter) IncrementalUpdate(ctx context.Context, batch *models.UpdateBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	positives := 0
	total := 0
	for _, event := range batch.Events {
		if err := ctx.Err(); err != nil {
			return err
		}

		if event.EventType == models.FeedbackRate && event.Rating != nil {
			user := a.userStats[event.UserID]
			user.count++
			user.sum += *event.Rating
			a.userStats[event.UserID] = user

			item := a.itemStats[event.ItemID]
			item.count++
			item.sum += *event.Rating
			a.itemStats[event.ItemID] = item
		}

		total++
		if event.EventType == models.FeedbackPurchase ||
			(event.EventType == models.FeedbackRate && event.Rating != nil && *event.Rating >= 4.0) {
			positives++
		}
	}

	// Small online bias correction toward the batch's positive rate. The
	// step size keeps a single batch from dominating the offline fit.
	if total > 0 {
		observed := float64(positives) / float64(total)
		a.bias += 0.05 * (observed - 0.5)
	}

	return nil
}

// ObserveRating seeds the feature aggregates from historical data.
func (a *RankerAdapter) ObserveRating(userID, itemID uuid.UUID, rating float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user := a.userStats[userID]
	user.count++
	user.sum += rating
	a.userStats[userID] = user

	item := a.itemStats[itemID]
	item.count++
	item.sum += rating
	a.itemStats[itemID] = item
}
