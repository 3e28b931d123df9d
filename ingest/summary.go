package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/castifi/bugtracker-dashboard/types"
)

// Summary is the result of one ingestion run: per-source record counts plus
// the error messages collected along the way. Every known source always has
// a count, zero when it was skipped or failed.
type Summary struct {
	// RunID identifies the run in logs. It is not part of the summary body.
	RunID string

	Counts map[types.Source]int
	Errors []string
}

func newSummary(runID string) *Summary {
	counts := make(map[types.Source]int, len(types.Sources()))
	for _, src := range types.Sources() {
		counts[src] = 0
	}

	return &Summary{RunID: runID, Counts: counts}
}

func (s *Summary) recordError(src types.Source, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s ingestion error: %s", displayName(src), err))
}

// Total returns the number of records ingested across all sources.
func (s *Summary) Total() int {
	total := 0
	for _, count := range s.Counts {
		total += count
	}

	return total
}

// MarshalJSON flattens the summary into the fixed result shape:
// {"shortcut": N, "slack": N, "zendesk": N, "errors": [...]}.
func (s *Summary) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Counts)+1)

	for _, src := range types.Sources() {
		out[string(src)] = s.Counts[src]
	}

	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}

	out["errors"] = errs

	return json.Marshal(out)
}

// displayName returns the capitalized source name used in error strings.
func displayName(src types.Source) string {
	name := string(src)
	if name == "" {
		return "Unknown"
	}

	return strings.ToUpper(name[:1]) + name[1:]
}
