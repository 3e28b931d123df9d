package types

import (
	"errors"
	"fmt"
	"time"
)

// Source identifies the upstream system a record was ingested from. The
// value is stored verbatim in the sourceSystem attribute of every record.
type Source string

const (
	// SourceShortcut is the project-management source (Shortcut stories).
	SourceShortcut Source = "shortcut"

	// SourceSlack is the chat source (Slack messages).
	SourceSlack Source = "slack"

	// SourceZendesk is the ticketing source (Zendesk tickets).
	SourceZendesk Source = "zendesk"
)

// Sources returns all known sources in ingestion order.
func Sources() []Source {
	return []Source{SourceShortcut, SourceSlack, SourceZendesk}
}

// IsValid reports whether s is one of the known sources.
func (s Source) IsValid() bool {
	switch s {
	case SourceShortcut, SourceSlack, SourceZendesk:
		return true
	default:
		return false
	}
}

// Priority is the normalized priority of a bug record. Each source maps its
// native priority vocabulary onto this set during normalization.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
	PriorityUnknown  Priority = "Unknown"
)

// IsValid reports whether p is one of the normalized priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityUnknown:
		return true
	default:
		return false
	}
}

// BugRecord is the common normalized shape every source is mapped into. One
// record is stored per bug item, keyed by (PartitionKey, SortKey); re-running
// ingestion overwrites records in place because both keys are deterministic
// functions of source-native identifiers.
//
// Timestamps are fabricated as the current time when the source omits them.
// CreatedAt <= UpdatedAt is expected but not enforced.
type BugRecord struct {
	// PartitionKey is the source-prefixed unique identifier, e.g. "SC-123".
	// The prefix alone determines the source system.
	PartitionKey string `json:"PK" dynamodbav:"PK"`

	// SortKey is the source-type-plus-native-id composite, e.g.
	// "shortcut#123". It is not unique without the partition key.
	SortKey string `json:"SK" dynamodbav:"SK"`

	SourceSystem Source   `json:"sourceSystem" dynamodbav:"sourceSystem"`
	Priority     Priority `json:"priority" dynamodbav:"priority"`

	// State is the human-readable workflow or lifecycle label. Identifiers
	// that cannot be resolved render as "Unknown (<raw-id>)".
	State string `json:"state" dynamodbav:"state"`

	// StateID keeps the raw upstream state identifier for traceability.
	StateID string `json:"state_id,omitempty" dynamodbav:"state_id,omitempty"`

	// Title is the story name or ticket subject. Empty for chat messages.
	Title string `json:"subject,omitempty" dynamodbav:"subject,omitempty"`

	// Text is the free-form body. May be empty for malformed records.
	Text string `json:"text" dynamodbav:"text"`

	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updatedAt"`

	// Author is the resolved display name of whoever created the item.
	Author string `json:"author,omitempty" dynamodbav:"author,omitempty"`

	// AuthorID is the raw upstream identifier behind Author.
	AuthorID string `json:"author_id,omitempty" dynamodbav:"author_id,omitempty"`

	// Assignee is the resolved display name, or names joined with ", ".
	// "Unassigned" when the source reports nobody.
	Assignee string `json:"assignee,omitempty" dynamodbav:"assignee,omitempty"`

	// AssigneeIDs keeps the raw upstream identifier list behind Assignee.
	AssigneeIDs []string `json:"assignee_ids,omitempty" dynamodbav:"assignee_ids,omitempty"`

	// Tags preserves the source's label ordering. No dedup is applied.
	Tags []string `json:"tags,omitempty" dynamodbav:"tags,omitempty"`
}

// Key returns the record's composite store key.
func (r *BugRecord) Key() RecordKey {
	return RecordKey{PartitionKey: r.PartitionKey, SortKey: r.SortKey}
}

// Validate checks the fields every stored record must carry.
func (r *BugRecord) Validate() error {
	if r.PartitionKey == "" {
		return errors.New("partition key cannot be empty")
	}

	if r.SortKey == "" {
		return errors.New("sort key cannot be empty")
	}

	if !r.SourceSystem.IsValid() {
		return fmt.Errorf("unknown source system %q", r.SourceSystem)
	}

	if !r.Priority.IsValid() {
		return fmt.Errorf("unknown priority %q", r.Priority)
	}

	return nil
}
