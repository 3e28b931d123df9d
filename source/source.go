// Package source defines the contract every upstream connector satisfies.
//
// Three connectors exist, one per upstream system: shortcut
// (project-management stories), slack (chat messages) and zendesk (helpdesk
// tickets). Each knows its own API's pagination and authentication scheme
// and returns fully normalized records; the ingestion orchestrator only ever
// sees this package's interfaces.
package source

import (
	"context"
	"time"

	"github.com/castifi/bugtracker-dashboard/types"
)

// Connector is the single capability the ingestion pipeline requires from a
// source variant. FetchAll performs the source's full listing, filtering and
// normalization pass and returns the resulting records.
//
// All connectors share one error contract: a failed initial listing call
// (or a rejected credential) returns an error and no records, while a
// failure on a later page or a per-item enrichment degrades to a fallback
// value or a skipped item and the partial result is returned without error.
// No call is ever retried.
type Connector interface {
	// Name returns the source key used in run summaries.
	Name() string

	FetchAll(ctx context.Context) ([]*types.BugRecord, error)
}

// Pinger is satisfied by connectors that can cheaply verify their upstream
// credentials without running a full fetch.
type Pinger interface {
	Name() string

	Ping(ctx context.Context) error
}

// TimeOrNow parses an RFC3339 timestamp from an upstream payload, falling
// back to the current time when the field is absent or malformed. The
// fallback fabricates a value rather than storing a zero time, so a
// fabricated CreatedAt can postdate the true event time.
func TimeOrNow(value string, now func() time.Time) time.Time {
	if value == "" {
		return now()
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return now()
	}

	return t
}
