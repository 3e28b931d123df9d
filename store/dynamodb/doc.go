// Package dynamodb provides a DynamoDB-backed implementation of the
// [github.com/castifi/bugtracker-dashboard/store.Store] interface.
//
// # Overview
//
// Each bug record is stored as a single item under a source-prefixed
// partition key ("PK") and a composite sort key ("SK"):
//
//   - Shortcut: SC-<story_id>      / shortcut#<story_id>
//   - Slack:    SL-<channel>-<ts>  / slack#<channel>#<ts>
//   - Zendesk:  ZD-<ticket_id>     / zendesk#<ticket_id>
//
// The remaining record fields are written as top-level attributes rather
// than a JSON blob, so segmented scans can filter on "sourceSystem"
// server-side and the dashboard can project individual attributes.
//
// Both key parts are derived from source-native identifiers, so writing the
// same upstream item twice always lands on the same DynamoDB item. That is
// what makes repeated ingestion runs converge instead of accumulating
// near-duplicates.
//
// # Getting Started
//
// Create a [Client] with [New], supplying an AWS config, the DynamoDB table
// name, and any [Option] values you need:
//
//	client := dynamodb.New(&awsCfg, tableName)
//	if err := client.Connect(); err != nil { ... }
//	if err := client.Init(ctx, false); err != nil { ... }
//
// By default, [Client.Connect] creates an AWS SDK v2 DynamoDB client from
// the supplied [aws.Config]. Supply [WithAPI] to inject a custom or mock
// implementation.
//
// # Batch Writes
//
// Writes and deletes of more than one record are grouped into
// BatchWriteItem calls of up to 25 items. DynamoDB may accept a batch
// partially; the client re-submits the unprocessed remainder with
// exponential backoff until the batch completes or the attempt limit is
// reached. This completes a partially accepted request and is distinct from
// retrying a failed one: a call that errors is returned to the caller as is.
//
// # Concurrency
//
// [Client] is safe for concurrent use by multiple goroutines once
// [Client.Connect] has returned.
package dynamodb
