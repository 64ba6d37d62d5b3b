package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// Projection maintains the supply chain network view: Facility and
// Contributor nodes with LISTS edges, updated as match decisions land
type Projection struct {
	client *Client
	logger ectologger.Logger
}

// NewProjection creates a new graph projection
func NewProjection(client *Client, logger ectologger.Logger) *Projection {
	return &Projection{
		client: client,
		logger: logger,
	}
}

// UpsertFacility creates or updates a facility node
func (p *Projection) UpsertFacility(ctx context.Context, facility *models.Facility) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.UpsertFacility")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"facility_id": facility.FacilityID,
	})

	props := map[string]any{
		"facility_id":  facility.FacilityID,
		"name":         facility.Name,
		"address":      facility.Address,
		"country_code": facility.CountryCode,
		"is_active":    facility.IsActive,
		"created_at":   facility.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at":   facility.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if facility.Lat != nil {
		props["lat"] = *facility.Lat
	}
	if facility.Lng != nil {
		props["lng"] = *facility.Lng
	}

	cypher := `
		MERGE (f:Facility {facility_id: $facility_id})
		SET f = $props
		RETURN f
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"facility_id": facility.FacilityID,
			"props":       props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to upsert facility in graph")
		return fmt.Errorf("failed to upsert facility in graph: %w", err)
	}

	log.Debug("Upserted facility in graph")
	return nil
}

// LinkListing records that a contributor lists a facility, created when a
// match decision lands as AUTOMATIC or is confirmed by a moderator
func (p *Projection) LinkListing(ctx context.Context, contributorID, facilityID, sourceID string, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.LinkListing")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"contributor_id": contributorID,
		"facility_id":    facilityID,
	})

	cypher := `
		MERGE (c:Contributor {contributor_id: $contributor_id})
		MERGE (f:Facility {facility_id: $facility_id})
		MERGE (c)-[r:LISTS]->(f)
		SET r.source_id = $source_id, r.confidence = $confidence
		RETURN r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"contributor_id": contributorID,
			"facility_id":    facilityID,
			"source_id":      sourceID,
			"confidence":     confidence,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to link contributor listing in graph")
		return fmt.Errorf("failed to link contributor listing in graph: %w", err)
	}

	log.Debug("Linked contributor listing in graph")
	return nil
}

// MergeFacility repoints every LISTS edge from the merged facility onto the
// surviving identity and marks the merged node
func (p *Projection) MergeFacility(ctx context.Context, facilityID, targetFacilityID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.MergeFacility")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"facility_id":        facilityID,
		"target_facility_id": targetFacilityID,
	})

	cypher := `
		MATCH (merged:Facility {facility_id: $facility_id})
		MERGE (target:Facility {facility_id: $target_facility_id})
		WITH merged, target
		OPTIONAL MATCH (c:Contributor)-[r:LISTS]->(merged)
		FOREACH (_ IN CASE WHEN r IS NULL THEN [] ELSE [1] END |
			MERGE (c)-[nr:LISTS]->(target)
			SET nr.source_id = r.source_id, nr.confidence = r.confidence
			DELETE r
		)
		SET merged.is_active = false, merged.merged_into_id = $target_facility_id
		RETURN merged
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"facility_id":        facilityID,
			"target_facility_id": targetFacilityID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to merge facility in graph")
		return fmt.Errorf("failed to merge facility in graph: %w", err)
	}

	log.Debug("Merged facility in graph")
	return nil
}

// ContributorFacilities returns the facility identifiers a contributor lists
func (p *Projection) ContributorFacilities(ctx context.Context, contributorID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.ContributorFacilities")
	defer span.End()

	cypher := `
		MATCH (c:Contributor {contributor_id: $contributor_id})-[:LISTS]->(f:Facility)
		WHERE f.is_active
		RETURN f.facility_id AS facility_id
		ORDER BY facility_id
	`

	result, err := p.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, cypher, map[string]any{"contributor_id": contributorID})
		if err != nil {
			return nil, err
		}

		var ids []string
		for rows.Next(ctx) {
			if value, ok := rows.Record().Get("facility_id"); ok {
				if id, ok := value.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, rows.Err()
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to query contributor facilities")
		return nil, fmt.Errorf("failed to query contributor facilities: %w", err)
	}

	ids, _ := result.([]string)
	return ids, nil
}
