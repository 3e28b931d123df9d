// Package sweep scans the store for records matching a set of text
// patterns and deletes them. It exists for operational cleanup: records
// written with broken keys by earlier ingester versions, test noise, or
// items whose text marks them as junk.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/types"
)

const (
	defaultSegments = 4

	// deleteBatchSize matches the DynamoDB batch-write limit. The postgres
	// backend has no such limit but batching keeps progress observable.
	deleteBatchSize = 25

	maxParallelScans = 4
)

// Criteria selects the records a sweep removes.
type Criteria struct {
	// Source is the source system whose records are scanned.
	Source types.Source

	// Patterns are matched case-insensitively against a record's title and
	// text; a record matches when any pattern is a substring of either
	// field. With no patterns every scanned record matches.
	Patterns []string

	// Segments is the number of scan segments to fan out. Zero means the
	// default of 4.
	Segments int
}

// Sweeper finds and deletes store records.
type Sweeper struct {
	store  store.Store
	logger zerolog.Logger
}

func New(st store.Store, logger zerolog.Logger) *Sweeper {
	return &Sweeper{store: st, logger: logger}
}

// Find scans the store and returns the records matching the criteria,
// without deleting anything. Segments are scanned in parallel; each worker
// fills its own result slot and the slots are merged in segment order once
// every worker is done.
func (s *Sweeper) Find(ctx context.Context, criteria Criteria) ([]*types.BugRecord, error) {
	if !criteria.Source.IsValid() {
		return nil, fmt.Errorf("unknown source system %q", criteria.Source)
	}

	segments := criteria.Segments
	if segments <= 0 {
		segments = defaultSegments
	}

	patterns := make([]string, 0, len(criteria.Patterns))

	for _, pattern := range criteria.Patterns {
		if pattern == "" {
			continue
		}

		patterns = append(patterns, strings.ToLower(pattern))
	}

	results := make([][]*types.BugRecord, segments)
	errs := make([]error, segments)

	wg := sync.WaitGroup{}
	sem := semaphore.NewWeighted(maxParallelScans)

	for segment := range segments {
		wg.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[segment] = err

				return
			}
			defer sem.Release(1)

			records, err := s.store.ScanSource(ctx, criteria.Source, segment, segments)
			if err != nil {
				errs[segment] = fmt.Errorf("failed to scan segment %d: %w", segment, err)

				return
			}

			results[segment] = records
		})
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	scanned := 0
	matched := []*types.BugRecord{}

	for _, records := range results {
		scanned += len(records)

		for _, record := range records {
			if matches(record, patterns) {
				matched = append(matched, record)
			}
		}
	}

	s.logger.Info().
		Str("source", string(criteria.Source)).
		Int("segments", segments).
		Int("scanned", scanned).
		Int("matched", len(matched)).
		Msg("sweep scan completed")

	return matched, nil
}

// Delete removes the given records in batches. It returns the number of
// records actually deleted; on error the count covers the batches that
// completed before the failure.
func (s *Sweeper) Delete(ctx context.Context, records []*types.BugRecord) (int, error) {
	keys := make([]types.RecordKey, len(records))
	for i, record := range records {
		keys[i] = record.Key()
	}

	deleted := 0

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		if err := s.store.DeleteRecords(ctx, keys[start:end]...); err != nil {
			return deleted, fmt.Errorf("failed to delete batch starting at %d: %w", start, err)
		}

		deleted += end - start

		s.logger.Debug().Int("deleted", deleted).Int("total", len(keys)).Msg("sweep delete progress")
	}

	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Msg("sweep delete completed")
	}

	return deleted, nil
}

// matches reports whether any pattern appears in the record's title or
// text. Matching is case-insensitive; no patterns means everything
// matches.
func matches(record *types.BugRecord, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	title := strings.ToLower(record.Title)
	text := strings.ToLower(record.Text)

	for _, pattern := range patterns {
		if strings.Contains(title, pattern) || strings.Contains(text, pattern) {
			return true
		}
	}

	return false
}
