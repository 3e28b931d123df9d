// Package ingest runs the source connectors and writes the records they
// produce to the store. A run is best-effort: each source is fetched and
// saved independently, and a failure in one source never stops the others.
package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/castifi/bugtracker-dashboard/source"
	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/types"
)

// Orchestrator drives one ingestion pass over a fixed set of connectors.
type Orchestrator struct {
	store      store.Store
	connectors []source.Connector
	logger     zerolog.Logger
}

// NewOrchestrator returns an orchestrator that ingests the given connectors
// in order on every run.
func NewOrchestrator(st store.Store, logger zerolog.Logger, connectors ...source.Connector) *Orchestrator {
	return &Orchestrator{
		store:      st,
		connectors: connectors,
		logger:     logger,
	}
}

// Run executes one full ingestion pass and returns its summary. It never
// returns an error: fetch and write failures are recorded in the summary
// and the remaining sources still run.
func (o *Orchestrator) Run(ctx context.Context) *Summary {
	summary := newSummary(uuid.NewString())
	logger := o.logger.With().Str("run_id", summary.RunID).Logger()

	logger.Info().Int("sources", len(o.connectors)).Msg("starting ingestion run")

	// First occurrence of a composite key wins, across the whole run.
	seen := make(map[types.RecordKey]struct{})

	for _, conn := range o.connectors {
		src := types.Source(conn.Name())

		records, err := conn.FetchAll(ctx)
		if err != nil {
			summary.recordError(src, err)
			logger.Error().Err(err).Str("source", conn.Name()).Msg("source fetch failed")

			continue
		}

		fresh := make([]*types.BugRecord, 0, len(records))

		for _, record := range records {
			key := record.Key()
			if _, dup := seen[key]; dup {
				logger.Debug().Str("pk", key.PartitionKey).Msg("skipping duplicate record")

				continue
			}

			seen[key] = struct{}{}
			fresh = append(fresh, record)
		}

		if err := o.store.SaveRecords(ctx, fresh...); err != nil {
			summary.recordError(src, err)
			logger.Error().Err(err).Str("source", conn.Name()).Msg("source write failed")

			continue
		}

		summary.Counts[src] = len(fresh)
		logger.Info().Str("source", conn.Name()).Int("records", len(fresh)).Msg("source ingested")
	}

	logger.Info().
		Int("shortcut", summary.Counts[types.SourceShortcut]).
		Int("slack", summary.Counts[types.SourceSlack]).
		Int("zendesk", summary.Counts[types.SourceZendesk]).
		Int("errors", len(summary.Errors)).
		Msg("ingestion run completed")

	return summary
}
