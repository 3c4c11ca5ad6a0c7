package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/pkg/models"
)

// CandidateStore pulls unscored candidate items from the Neo4j item graph.
// Candidate generation stays external to the fusion core: this store is
// one pluggable source behind the CandidateProvider interface.
type CandidateStore struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewCandidateStore(driver neo4j.DriverWithContext, logger *logrus.Logger) *CandidateStore {
	return &CandidateStore{
		driver: driver,
		logger: logger,
	}
}

// GetCandidates returns up to limit items the user has not already rated,
// together with their categorical attributes. Items the graph knows
// nothing about for this user are ranked by inbound interaction degree so
// the pool skews toward items with scoreable signal.
func (cs *CandidateStore) GetCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]models.CandidateItem, error) {
	session := cs.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (item:Item)
		WHERE NOT EXISTS {
			MATCH (u:User {user_id: $userId})-[:RATED]->(item)
		}
		OPTIONAL MATCH (item)<-[r:RATED|VIEWED|PURCHASED]-()
		WITH item, count(r) as degree
		ORDER BY degree DESC
		LIMIT $limit
		RETURN item.item_id as item_id, item.attributes as attributes
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		records, err := tx.Run(ctx, query, map[string]interface{}{
			"userId": userID.String(),
			"limit":  limit,
		})
		if err != nil {
			return nil, err
		}
		return collectCandidates(ctx, records, cs.logger)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}

	return result.([]models.CandidateItem), nil
}

// collectCandidates decodes (item_id, attributes) records, skipping rows
// with malformed ids rather than failing the whole query.
func collectCandidates(ctx context.Context, records neo4j.ResultWithContext, logger *logrus.Logger) ([]models.CandidateItem, error) {
	var candidates []models.CandidateItem
	for records.Next(ctx) {
		record := records.Record()

		itemIDValue, ok := record.Get("item_id")
		if !ok {
			continue
		}
		itemIDStr, ok := itemIDValue.(string)
		if !ok {
			continue
		}
		itemID, err := uuid.Parse(itemIDStr)
		if err != nil {
			logger.WithField("item_id", itemIDStr).Warn("Skipping candidate with malformed id")
			continue
		}

		candidate := models.CandidateItem{ItemID: itemID}
		if attrsValue, ok := record.Get("attributes"); ok && attrsValue != nil {
			if attrs, ok := attrsValue.([]interface{}); ok {
				for _, attr := range attrs {
					if s, ok := attr.(string); ok {
						candidate.Attributes = append(candidate.Attributes, s)
					}
				}
			}
		}

		candidates = append(candidates, candidate)
	}

	return candidates, records.Err()
}

// AllItems returns every known item with its attributes, used to seed the
// content model at startup.
func (cs *CandidateStore) AllItems(ctx context.Context, limit int) ([]models.CandidateItem, error) {
	session := cs.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (item:Item)
		RETURN item.item_id as item_id, item.attributes as attributes
		LIMIT $limit
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		records, err := tx.Run(ctx, query, map[string]interface{}{"limit": limit})
		if err != nil {
			return nil, err
		}
		return collectCandidates(ctx, records, cs.logger)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	return result.([]models.CandidateItem), nil
}

// UpsertItem writes an item node with its attributes, used when content
// metadata arrives or changes.
func (cs *CandidateStore) UpsertItem(ctx context.Context, itemID uuid.UUID, attributes []string) error {
	session := cs.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (item:Item {item_id: $itemId})
		SET item.attributes = $attributes
	`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"itemId":     itemID.String(),
			"attributes": attributes,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	return nil
}

// RecordInteraction mirrors a feedback event into the graph so the
// not-yet-rated filter and degree ranking stay current.
func (cs *CandidateStore) RecordInteraction(ctx context.Context, event models.FeedbackEvent) error {
	session := cs.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	relType := map[models.FeedbackEventType]string{
		models.FeedbackRate:     "RATED",
		models.FeedbackView:     "VIEWED",
		models.FeedbackClick:    "VIEWED",
		models.FeedbackPurchase: "PURCHASED",
	}[event.EventType]
	if relType == "" {
		return nil
	}

	query := fmt.Sprintf(`
		MERGE (u:User {user_id: $userId})
		MERGE (item:Item {item_id: $itemId})
		MERGE (u)-[r:%s]->(item)
		SET r.timestamp = $timestamp
	`, relType)

	params := map[string]interface{}{
		"userId":    event.UserID.String(),
		"itemId":    event.ItemID.String(),
		"timestamp": event.Timestamp.Unix(),
	}
	if event.Rating != nil {
		query += ", r.rating = $rating"
		params["rating"] = *event.Rating
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	return nil
}
