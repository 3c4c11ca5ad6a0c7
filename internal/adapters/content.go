package adapters

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/jtarrant/recfuse/pkg/models"
)

// likedRatingThreshold is the minimum rating for an item's attributes to
// count toward a user's taste profile.
const likedRatingThreshold = 4.0

// ContentAdapter scores items by attribute overlap with a per-user taste
// profile built from highly rated items. Attribute names are case-folded so
// catalog inconsistencies ("Sci-Fi" vs "sci-fi") collapse into one key.
type ContentAdapter struct {
	mu sync.RWMutex

	folder    cases.Caser
	itemAttrs map[uuid.UUID][]string
	// userPrefs accumulates attribute affinity per user, weighted by how
	// far above the liked threshold each rating landed.
	userPrefs map[uuid.UUID]map[string]float64
}

func NewContentAdapter() *ContentAdapter {
	return &ContentAdapter{
		folder:    cases.Fold(),
		itemAttrs: make(map[uuid.UUID][]string),
		userPrefs: make(map[uuid.UUID]map[string]float64),
	}
}

func (a *ContentAdapter) Name() string {
	return models.ModelContent
}

// SetItemAttributes registers (or replaces) the attribute set for an item.
func (a *ContentAdapter) SetItemAttributes(itemID uuid.UUID, attributes []string) {
	normalized := make([]string, 0, len(attributes))
	for _, attr := range attributes {
		normalized = append(normalized, a.folder.String(attr))
	}

	a.mu.Lock()
	a.itemAttrs[itemID] = normalized
	a.mu.Unlock()
}

func (a *ContentAdapter) Score(ctx context.Context, userID, itemID uuid.UUID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	prefs := a.userPrefs[userID]
	attrs := a.itemAttrs[itemID]
	if len(prefs) == 0 || len(attrs) == 0 {
		return 0, ErrNoCoverage
	}

	// Cosine-style overlap between the user's affinity vector and the
	// item's binary attribute vector.
	dot := 0.0
	for _, attr := range attrs {
		dot += prefs[attr]
	}
	if dot == 0 {
		return 0, nil
	}

	norm := 0.0
	for _, weight := range prefs {
		norm += weight * weight
	}

	return dot / (math.Sqrt(norm) * math.Sqrt(float64(len(attrs)))), nil
}

func (a *ContentAdapter) IncrementalUpdate(ctx context.Context, batch *models.UpdateBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, event := range batch.Events {
		if err := ctx.Err(); err != nil {
			return err
		}

		weight := a.eventWeight(event)
		if weight == 0 {
			continue
		}

		attrs, ok := a.itemAttrs[event.ItemID]
		if !ok {
			continue
		}

		prefs := a.userPrefs[event.UserID]
		if prefs == nil {
			prefs = make(map[string]float64)
			a.userPrefs[event.UserID] = prefs
		}
		for _, attr := range attrs {
			prefs[attr] += weight
		}
	}

	return nil
}

// eventWeight maps a feedback event to an attribute affinity increment.
// Only clearly positive signals build the profile.
func (a *ContentAdapter) eventWeight(event models.FeedbackEvent) float64 {
	switch event.EventType {
	case models.FeedbackRate:
		if event.Rating == nil || *event.Rating < likedRatingThreshold {
			return 0
		}
		return 1.0 + (*event.Rating - likedRatingThreshold)
	case models.FeedbackPurchase:
		return 1.0
	case models.FeedbackClick:
		return 0.25
	default:
		return 0
	}
}
