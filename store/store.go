// Package store defines the contract the bug-record store backends
// implement. The DynamoDB backend in [store/dynamodb] is the production
// store; the PostgreSQL backend in [store/postgres] serves environments
// without DynamoDB. Both store one item per record under the composite
// (partition key, sort key) and treat every write as a full overwrite, which
// is what makes re-running ingestion safe.
package store

import (
	"context"
	"errors"

	"github.com/castifi/bugtracker-dashboard/types"
)

var (
	// ErrNotConnected indicates the backend has not been connected yet.
	ErrNotConnected = errors.New("store is not connected")

	// ErrInvalidSegment indicates a segmented scan was asked for a segment
	// outside [0, totalSegments).
	ErrInvalidSegment = errors.New("invalid scan segment")
)

// Store is the write-side contract of the bug-record table.
type Store interface {
	// SaveRecords upserts the given records, overwriting any existing item
	// with the same composite key. Records are validated before any write is
	// issued; a validation failure fails the whole call.
	SaveRecords(ctx context.Context, records ...*types.BugRecord) error

	// ScanSource returns the stored records of one source system that fall
	// into the given scan segment. Callers fan segments out to parallel
	// workers and merge the returned slices after all workers complete.
	ScanSource(ctx context.Context, source types.Source, segment, totalSegments int) ([]*types.BugRecord, error)

	// DeleteRecords removes the records with the given keys. Missing keys
	// are not an error.
	DeleteRecords(ctx context.Context, keys ...types.RecordKey) error

	// Close releases the backend's resources.
	Close(ctx context.Context) error
}
