package enrich

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mal33k-eden/pms-agent-api/internal/domain/queue"
)

const (
	DefaultPollInterval        = 5 * time.Second
	DefaultMaintenanceInterval = time.Hour
)

// Worker drains the processing queue in the background and periodically
// purges expired safety rows and cache entries. Queued items are always
// enriched in enhanced mode.
type Worker struct {
	queue    QueueStore
	enricher *Enricher
	drugs    DrugStore
	cache    CachePurger
	poll     time.Duration
	maintain time.Duration
	logger   zerolog.Logger
}

func NewWorker(queue QueueStore, enricher *Enricher, drugs DrugStore, cache CachePurger, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		enricher: enricher,
		drugs:    drugs,
		cache:    cache,
		poll:     DefaultPollInterval,
		maintain: DefaultMaintenanceInterval,
		logger:   logger.With().Str("component", "worker").Logger(),
	}
}

// SetIntervals overrides the poll and maintenance cadence. Zero keeps the
// current value.
func (w *Worker) SetIntervals(poll, maintain time.Duration) {
	if poll > 0 {
		w.poll = poll
	}
	if maintain > 0 {
		w.maintain = maintain
	}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll", w.poll).Dur("maintenance", w.maintain).Msg("worker started")

	pollTicker := time.NewTicker(w.poll)
	defer pollTicker.Stop()
	maintTicker := time.NewTicker(w.maintain)
	defer maintTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return ctx.Err()
		case <-pollTicker.C:
			w.drain(ctx)
		case <-maintTicker.C:
			w.runMaintenance(ctx)
		}
	}
}

// drain claims and processes items until the pending queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		item, err := w.queue.Claim(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("queue claim failed")
			return
		}
		if item == nil {
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item *queue.Item) {
	log := w.logger.With().Stringer("item_id", item.ID).Str("drug", item.DrugName).Logger()
	if _, err := w.enricher.Enrich(ctx, item.DrugName, ModeEnhanced); err != nil {
		log.Error().Err(err).Msg("queued enrichment failed")
		if err := w.queue.MarkFailed(ctx, item.ID); err != nil {
			log.Error().Err(err).Msg("could not mark item failed")
		}
		return
	}
	if err := w.queue.MarkDone(ctx, item.ID); err != nil {
		log.Error().Err(err).Msg("could not mark item done")
		return
	}
	log.Info().Msg("queued enrichment completed")
}

func (w *Worker) runMaintenance(ctx context.Context) {
	safetyRows, err := w.drugs.PurgeExpiredSafety(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("safety purge failed")
	}
	var cacheEntries int64
	if w.cache != nil {
		cacheEntries, err = w.cache.PurgeExpired(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("cache purge failed")
		}
	}
	w.logger.Info().Int64("safety_rows", safetyRows).Int64("cache_entries", cacheEntries).Msg("expired data purged")
}
