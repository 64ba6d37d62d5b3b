// Package events handles event emission for facility lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// Emitter publishes facility lifecycle events for downstream consumers
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitDecision emits the event corresponding to a written match decision:
// facility.created when a new facility was minted, facility.matched for
// automatic matches and facility.match_pending for records awaiting review
func (e *Emitter) EmitDecision(ctx context.Context, item *models.ListItem, match *models.FacilityMatch, isNewFacility bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDecision")
	defer span.End()

	event := &kafka.FacilityEvent{
		ListItemID:    match.ListItemID,
		SourceID:      item.SourceID,
		ContributorID: item.ContributorID,
		Confidence:    match.Confidence,
		Results:       match.Results,
	}
	if match.FacilityID != nil {
		event.FacilityID = *match.FacilityID
	}

	switch {
	case match.Status == models.MatchStatusPending:
		event.EventType = kafka.EventFacilityMatchPending
	case isNewFacility:
		event.EventType = kafka.EventFacilityCreated
	default:
		event.EventType = kafka.EventFacilityMatched
	}

	if err := e.producer.PublishFacilityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit decision event")
		return err
	}

	return nil
}

// EmitCreated emits a facility.created event for a facility minted outside
// the automatic pipeline (moderator rejection path)
func (e *Emitter) EmitCreated(ctx context.Context, facilityID, listItemID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCreated")
	defer span.End()

	event := &kafka.FacilityEvent{
		EventType:  kafka.EventFacilityCreated,
		FacilityID: facilityID,
		ListItemID: listItemID,
	}

	if err := e.producer.PublishFacilityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit facility.created event")
		return err
	}

	return nil
}

// EmitMatched emits a facility.matched event for a moderator confirmation
func (e *Emitter) EmitMatched(ctx context.Context, facilityID, listItemID string, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatched")
	defer span.End()

	event := &kafka.FacilityEvent{
		EventType:  kafka.EventFacilityMatched,
		FacilityID: facilityID,
		ListItemID: listItemID,
		Confidence: confidence,
	}

	if err := e.producer.PublishFacilityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit facility.matched event")
		return err
	}

	return nil
}

// EmitMerged emits a facility.merged event naming the surviving identity
func (e *Emitter) EmitMerged(ctx context.Context, facilityID, targetFacilityID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMerged")
	defer span.End()

	event := &kafka.FacilityEvent{
		EventType:        kafka.EventFacilityMerged,
		FacilityID:       facilityID,
		TargetFacilityID: targetFacilityID,
	}

	if err := e.producer.PublishFacilityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit facility.merged event")
		return err
	}

	return nil
}
