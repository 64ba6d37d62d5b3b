// Package processor drives the matching pipeline. Intake stages cleaned
// records as list items; ProcessSource walks the staged items of a source in
// row order and runs retrieval, scoring and decision persistence for each.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/juniper/pkg/geocoding"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// listItemStore is the subset of the list item repository the pipeline needs
type listItemStore interface {
	Upsert(ctx context.Context, item *models.ListItem) (*models.ListItem, error)
	ListPendingBySource(ctx context.Context, sourceID string) ([]models.ListItem, error)
	MarkError(ctx context.Context, id string) error
	UpdateCoordinates(ctx context.Context, id string, lat, lng float64, locationType *string) error
}

type facilityStore interface {
	Get(ctx context.Context, facilityID string) (*models.Facility, error)
}

type candidateRetriever interface {
	FindCandidates(ctx context.Context, item *models.ListItem) ([]models.Candidate, error)
}

type matcher interface {
	Match(ctx context.Context, item *models.ListItem, candidates []models.Candidate) (*models.MatchDecision, error)
}

type decisionWriter interface {
	WriteDecision(ctx context.Context, item *models.ListItem, decision *models.MatchDecision) (*models.FacilityMatch, error)
}

type decisionEmitter interface {
	EmitDecision(ctx context.Context, item *models.ListItem, match *models.FacilityMatch, isNewFacility bool) error
}

type graphProjection interface {
	UpsertFacility(ctx context.Context, facility *models.Facility) error
	LinkListing(ctx context.Context, contributorID, facilityID, sourceID string, confidence float64) error
}

// Options tunes retry behavior for transient failures during a batch run
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultOptions returns the retry settings used when none are provided
func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Processor handles intake messages and source batch processing
type Processor struct {
	logger       ectologger.Logger
	listItemRepo listItemStore
	facilityRepo facilityStore
	retriever    candidateRetriever
	engine       matcher
	writer       decisionWriter
	emitter      decisionEmitter
	geocoder     geocoding.Geocoder // nil when geocoding is disabled
	projection   graphProjection    // nil when the graph is disabled
	opts         Options
}

// NewProcessor creates a new pipeline processor. The geocoder and projection
// are optional; pass nil to skip those stages.
func NewProcessor(
	logger ectologger.Logger,
	listItemRepo listItemStore,
	facilityRepo facilityStore,
	retriever candidateRetriever,
	engine matcher,
	writer decisionWriter,
	emitter decisionEmitter,
	geocoder geocoding.Geocoder,
	projection graphProjection,
	opts Options,
) *Processor {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Processor{
		logger:       logger,
		listItemRepo: listItemRepo,
		facilityRepo: facilityRepo,
		retriever:    retriever,
		engine:       engine,
		writer:       writer,
		emitter:      emitter,
		geocoder:     geocoder,
		projection:   projection,
		opts:         opts,
	}
}

// BatchSummary reports the outcome of a ProcessSource run
type BatchSummary struct {
	SourceID      string `json:"source_id"`
	Processed     int    `json:"processed"`
	Matched       int    `json:"matched"`
	NewFacilities int    `json:"new_facilities"`
	Pending       int    `json:"pending"`
	Errors        int    `json:"errors"`
}

// ProcessMessage handles an incoming cleaned record from the intake topic and
// stages it as a pending list item. Matching happens later when the source is
// processed as a batch.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	if msg.CleanedRecord == nil {
		if err := msg.ParseCleanedRecord(); err != nil {
			log.WithError(err).Error("Failed to parse cleaned record")
			return err
		}
	}

	record := msg.CleanedRecord
	item := &models.ListItem{
		SourceID:             record.SourceID,
		RowIndex:             record.RowIndex,
		ContributorID:        record.ContributorID,
		Name:                 record.Name,
		Address:              record.Address,
		CountryCode:          record.CountryCode,
		Lat:                  record.Lat,
		Lng:                  record.Lng,
		GeocodedLocationType: record.GeocodedLocationType,
		Status:               models.ListItemStatusPending,
	}

	staged, err := p.listItemRepo.Upsert(ctx, item)
	if err != nil {
		log.WithError(err).Error("Failed to stage list item")
		return err
	}

	log.WithFields(map[string]any{
		"list_item_id": staged.ID,
		"source_id":    staged.SourceID,
		"row_index":    staged.RowIndex,
	}).Info("Staged cleaned record")

	return nil
}

// ProcessSource runs the matching pipeline over every pending item of a
// source in row order. Items already matched are not refetched, so a rerun
// after a partial failure resumes where the previous run stopped.
func (p *Processor) ProcessSource(ctx context.Context, sourceID string) (*BatchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessSource")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": sourceID,
	})

	items, err := p.listItemRepo.ListPendingBySource(ctx, sourceID)
	if err != nil {
		log.WithError(err).Error("Failed to list pending items for source")
		return nil, err
	}

	summary := &BatchSummary{SourceID: sourceID}
	log.WithFields(map[string]any{"item_count": len(items)}).Info("Processing source")

	for i := range items {
		if err := ctx.Err(); err != nil {
			log.WithFields(map[string]any{"processed": summary.Processed}).Warn("Source processing cancelled")
			return summary, err
		}

		item := &items[i]
		if err := p.processItem(ctx, item, summary); err != nil {
			summary.Errors++
			itemLog := log.WithError(err).WithFields(map[string]any{
				"list_item_id": item.ID,
				"row_index":    item.RowIndex,
			})
			itemLog.Error("Failed to process list item")
			if markErr := p.listItemRepo.MarkError(ctx, item.ID); markErr != nil {
				itemLog.WithError(markErr).Warn("Failed to mark list item as errored")
			}
			continue
		}
		summary.Processed++
	}

	log.WithFields(map[string]any{
		"processed":      summary.Processed,
		"matched":        summary.Matched,
		"new_facilities": summary.NewFacilities,
		"pending":        summary.Pending,
		"errors":         summary.Errors,
	}).Info("Source processing complete")

	return summary, nil
}

// processItem runs one item through geocoding, retrieval, scoring and
// persistence. Retrieval and persistence retry on transient failures; a
// geocoding failure is logged and the item proceeds without coordinates.
func (p *Processor) processItem(ctx context.Context, item *models.ListItem, summary *BatchSummary) error {
	ctx, span := tracing.StartSpan(ctx, "processor.processItem")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"list_item_id": item.ID,
		"source_id":    item.SourceID,
		"row_index":    item.RowIndex,
	})

	p.geocodeItem(ctx, item, log)

	var candidates []models.Candidate
	err := p.withRetry(ctx, func() error {
		var retrieveErr error
		candidates, retrieveErr = p.retriever.FindCandidates(ctx, item)
		return retrieveErr
	})
	if err != nil {
		log.WithError(err).Error("Candidate retrieval failed")
		return err
	}

	decision, err := p.engine.Match(ctx, item, candidates)
	if err != nil {
		log.WithError(err).Error("Matching failed")
		return err
	}
	isNewFacility := decision.IsNewFacility()

	var match *models.FacilityMatch
	err = p.withRetry(ctx, func() error {
		var writeErr error
		match, writeErr = p.writer.WriteDecision(ctx, item, decision)
		return writeErr
	})
	if err != nil {
		log.WithError(err).Error("Failed to persist match decision")
		return err
	}

	switch match.Status {
	case models.MatchStatusPending:
		summary.Pending++
	case models.MatchStatusAutomatic:
		summary.Matched++
		if isNewFacility {
			summary.NewFacilities++
		}
	}

	if p.emitter != nil {
		if err := p.emitter.EmitDecision(ctx, item, match, isNewFacility); err != nil {
			log.WithError(err).Warn("Failed to emit match decision event")
		}
	}

	if match.Status == models.MatchStatusAutomatic && match.FacilityID != nil {
		p.projectDecision(ctx, item, match, log)
	}

	log.WithFields(map[string]any{
		"match_id":        match.ID,
		"status":          match.Status,
		"confidence":      match.Confidence,
		"candidate_count": len(candidates),
		"is_new_facility": isNewFacility,
	}).Info("Processed list item")

	return nil
}

// geocodeItem fills in missing coordinates when a geocoder is configured.
// Failures are tolerated; scoring skips the distance matcher for items
// without coordinates.
func (p *Processor) geocodeItem(ctx context.Context, item *models.ListItem, log ectologger.Logger) {
	if p.geocoder == nil || item.HasCoordinates() || item.Address == "" {
		return
	}

	result, err := p.geocoder.Geocode(ctx, item.Address, item.CountryCode)
	if err != nil {
		log.WithError(err).Warn("Geocoding failed, continuing without coordinates")
		return
	}

	item.Lat = &result.Lat
	item.Lng = &result.Lng
	if result.LocationType != "" {
		locationType := result.LocationType
		item.GeocodedLocationType = &locationType
	}

	if err := p.listItemRepo.UpdateCoordinates(ctx, item.ID, result.Lat, result.Lng, item.GeocodedLocationType); err != nil {
		log.WithError(err).Warn("Failed to persist geocoded coordinates")
	}
}

// projectDecision mirrors an automatic match into the graph. The relational
// store is the system of record, so projection failures only log.
func (p *Processor) projectDecision(ctx context.Context, item *models.ListItem, match *models.FacilityMatch, log ectologger.Logger) {
	if p.projection == nil {
		return
	}

	facility, err := p.facilityRepo.Get(ctx, *match.FacilityID)
	if err != nil {
		log.WithError(err).Warn("Failed to load facility for graph projection")
		return
	}

	if err := p.projection.UpsertFacility(ctx, facility); err != nil {
		log.WithError(err).Warn("Failed to project facility to graph")
		return
	}

	if item.ContributorID != "" {
		if err := p.projection.LinkListing(ctx, item.ContributorID, facility.FacilityID, item.SourceID, match.Confidence); err != nil {
			log.WithError(err).Warn("Failed to project listing to graph")
		}
	}
}

// withRetry runs fn up to MaxRetries times, sleeping RetryBackoff between
// attempts. Cancellation stops the retry loop immediately.
func (p *Processor) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.opts.MaxRetries {
			break
		}

		timer := time.NewTimer(p.opts.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
