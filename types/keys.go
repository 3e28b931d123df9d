package types

import (
	"fmt"
	"strings"
)

// RecordKey is the composite key a BugRecord is stored under.
type RecordKey struct {
	PartitionKey string
	SortKey      string
}

// ShortcutKey builds the store key for a Shortcut story.
func ShortcutKey(storyID int64) RecordKey {
	return RecordKey{
		PartitionKey: fmt.Sprintf("SC-%d", storyID),
		SortKey:      fmt.Sprintf("shortcut#%d", storyID),
	}
}

// SlackKey builds the store key for a Slack message from its channel ID and
// message timestamp. Both identifiers are assigned by Slack and immutable,
// so re-ingesting the same message always lands on the same key. The "." in
// the timestamp is dropped from the partition key only.
func SlackKey(channelID, timestamp string) RecordKey {
	return RecordKey{
		PartitionKey: "SL-" + channelID + "-" + strings.ReplaceAll(timestamp, ".", ""),
		SortKey:      "slack#" + channelID + "#" + timestamp,
	}
}

// ZendeskKey builds the store key for a Zendesk ticket.
func ZendeskKey(ticketID int64) RecordKey {
	return RecordKey{
		PartitionKey: fmt.Sprintf("ZD-%d", ticketID),
		SortKey:      fmt.Sprintf("zendesk#%d", ticketID),
	}
}

// SourceFromPartitionKey derives the source system from a partition key
// prefix. The prefix is the invariant that keeps keys from colliding across
// sources.
func SourceFromPartitionKey(pk string) (Source, bool) {
	switch {
	case strings.HasPrefix(pk, "SC-"):
		return SourceShortcut, true
	case strings.HasPrefix(pk, "SL-"):
		return SourceSlack, true
	case strings.HasPrefix(pk, "ZD-"):
		return SourceZendesk, true
	default:
		return "", false
	}
}
