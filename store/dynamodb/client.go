package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/types"
)

const (
	// PartitionKey is the DynamoDB partition key attribute name.
	PartitionKey = "PK"

	// SortKey is the DynamoDB sort key attribute name.
	SortKey = "SK"

	// SourceSystemAttr is the attribute name that records which source system
	// produced a record. Segmented scans filter on it.
	SourceSystemAttr = "sourceSystem"

	// batchSize is the DynamoDB BatchWriteItem request limit.
	batchSize = 25

	// maxBackoff is the maximum backoff duration for the unprocessed-item loop.
	maxBackoff = 2 * time.Second
)

// Client is a DynamoDB-backed implementation of the [store.Store] interface.
// It stores one item per bug record, keyed by the record's source-derived
// partition and sort keys.
//
// Use [New] to create a Client, [Client.Connect] to initialize the underlying
// DynamoDB connection, and [Client.Init] to validate the table schema.
type Client struct {
	client    API
	tableName string
	awsCfg    *aws.Config
	opts      *Options
}

// New creates a new Client configured with the given AWS config, table name,
// and optional options. Call [Client.Connect] on the returned client before use.
func New(awsCfg *aws.Config, tableName string, opts ...Option) *Client {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg:    awsCfg,
		tableName: tableName,
		opts:      options,
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to [New].
// It must be called before any other Client methods, and must complete before
// the Client is used concurrently.
func (c *Client) Connect() error {
	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	if c.tableName == "" {
		return errors.New("table name cannot be empty")
	}

	// Use injected DynamoDB API if provided (useful for testing).
	if c.opts.dynamoDBAPI != nil {
		c.client = c.opts.dynamoDBAPI
	} else {
		c.client = dynamodb.NewFromConfig(*c.awsCfg)
	}

	return nil
}

// Init validates the DynamoDB table schema. It checks that the table exists,
// is active, and has the correct partition key (PK) and sort key (SK).
//
// Pass skipSchemaValidation true to skip all checks and return immediately,
// which is useful when schema validation is managed separately.
func (c *Client) Init(ctx context.Context, skipSchemaValidation bool) error {
	if c.client == nil {
		return store.ErrNotConnected
	}

	if skipSchemaValidation {
		return nil
	}

	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	}

	response, err := c.client.DescribeTable(ctx, input)
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", c.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", c.tableName, err)
	}

	if len(response.Table.KeySchema) < 1 {
		return fmt.Errorf("table %s has no key schema", c.tableName)
	}

	if aws.ToString(response.Table.KeySchema[0].AttributeName) != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", c.tableName, aws.ToString(response.Table.KeySchema[0].AttributeName), PartitionKey)
	}

	if len(response.Table.KeySchema) < 2 {
		return fmt.Errorf("table %s has a simple primary key, expected composite", c.tableName)
	}

	if aws.ToString(response.Table.KeySchema[1].AttributeName) != SortKey {
		return fmt.Errorf("table %s has sort key %s, expected %s", c.tableName, aws.ToString(response.Table.KeySchema[1].AttributeName), SortKey)
	}

	if response.Table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", c.tableName, response.Table.TableStatus)
	}

	return nil
}

// SaveRecords upserts the given records. A single record is written with
// PutItem; two or more records are batched in groups of up to 25 using
// BatchWriteItem, with exponential backoff for any unprocessed items.
//
// Every record is validated before the first write is issued, so a malformed
// record fails the call without touching the table.
func (c *Client) SaveRecords(ctx context.Context, records ...*types.BugRecord) error {
	if c.client == nil {
		return store.ErrNotConnected
	}

	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		if record == nil {
			return errors.New("record cannot be nil")
		}

		if err := record.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
	}

	// Use the simplified single-item write if there's only one record.
	if len(records) == 1 {
		return c.saveRecord(ctx, records[0])
	}

	var requestItems []dynamodbtypes.WriteRequest

	for i, record := range records {
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", record.PartitionKey, err)
		}

		requestItems = append(requestItems, dynamodbtypes.WriteRequest{
			PutRequest: &dynamodbtypes.PutRequest{
				Item: item,
			},
		})

		// Keep adding records to the request until we reach the batch limit (25) or run out of records.
		if len(requestItems) < batchSize && i < len(records)-1 {
			continue
		}

		if err := c.writeBatch(ctx, requestItems); err != nil {
			return err
		}

		// Reset the request items for the next batch.
		requestItems = nil
	}

	return nil
}

// ScanSource returns every stored record of the given source system that
// falls into the given scan segment. It pages through the table with
// DynamoDB's parallel scan, filtering on the sourceSystem attribute
// server-side. Segments are numbered 0 through totalSegments-1; callers fan
// them out to parallel workers and merge the results after all workers
// complete.
func (c *Client) ScanSource(ctx context.Context, source types.Source, segment, totalSegments int) ([]*types.BugRecord, error) {
	if c.client == nil {
		return nil, store.ErrNotConnected
	}

	if !source.IsValid() {
		return nil, fmt.Errorf("unknown source system %q", source)
	}

	if totalSegments < 1 || segment < 0 || segment >= totalSegments {
		return nil, fmt.Errorf("%w: segment %d of %d", store.ErrInvalidSegment, segment, totalSegments)
	}

	input := &dynamodb.ScanInput{
		TableName:        aws.String(c.tableName),
		Segment:          aws.Int32(int32(segment)),
		TotalSegments:    aws.Int32(int32(totalSegments)),
		FilterExpression: aws.String(SourceSystemAttr + " = :source"),
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":source": &dynamodbtypes.AttributeValueMemberS{Value: string(source)},
		},
	}

	var records []*types.BugRecord

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := c.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan DynamoDB table %s: %w", c.tableName, err)
		}

		for _, item := range output.Items {
			var record types.BugRecord

			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal record from DynamoDB table %s: %w", c.tableName, err)
			}

			records = append(records, &record)
		}

		if output.LastEvaluatedKey == nil {
			break
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	return records, nil
}

// DeleteRecords removes the records with the given keys, batched in groups
// of up to 25 using BatchWriteItem with exponential backoff for any
// unprocessed items. Keys that do not exist in the table are ignored.
func (c *Client) DeleteRecords(ctx context.Context, keys ...types.RecordKey) error {
	if c.client == nil {
		return store.ErrNotConnected
	}

	if len(keys) == 0 {
		return nil
	}

	for _, key := range keys {
		if key.PartitionKey == "" {
			return errors.New("partition key cannot be empty")
		}

		if key.SortKey == "" {
			return errors.New("sort key cannot be empty")
		}
	}

	// Process keys in batches of 25 (DynamoDB BatchWriteItem limit).
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		batch := keys[i:end]

		requestItems := make([]dynamodbtypes.WriteRequest, 0, len(batch))

		for _, key := range batch {
			requestItems = append(requestItems, dynamodbtypes.WriteRequest{
				DeleteRequest: &dynamodbtypes.DeleteRequest{
					Key: map[string]dynamodbtypes.AttributeValue{
						PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: key.PartitionKey},
						SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: key.SortKey},
					},
				},
			})
		}

		if err := c.writeBatch(ctx, requestItems); err != nil {
			return err
		}
	}

	return nil
}

// DropAllData deletes every item from the table. It scans the table in
// pages and removes each page in batches of up to 25, draining unprocessed
// items the same way as writes.
//
// This method is intended for use in tests only. Do not call it in
// production.
func (c *Client) DropAllData(ctx context.Context) error {
	if c.client == nil {
		return store.ErrNotConnected
	}

	input := &dynamodb.ScanInput{
		TableName:            aws.String(c.tableName),
		ProjectionExpression: aws.String(PartitionKey + ", " + SortKey),
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		output, err := c.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan DynamoDB table %s: %w", c.tableName, err)
		}

		for i := 0; i < len(output.Items); i += batchSize {
			end := min(i+batchSize, len(output.Items))

			requestItems := make([]dynamodbtypes.WriteRequest, 0, end-i)

			for _, item := range output.Items[i:end] {
				requestItems = append(requestItems, dynamodbtypes.WriteRequest{
					DeleteRequest: &dynamodbtypes.DeleteRequest{
						Key: map[string]dynamodbtypes.AttributeValue{
							PartitionKey: item[PartitionKey],
							SortKey:      item[SortKey],
						},
					},
				})
			}

			if err := c.writeBatch(ctx, requestItems); err != nil {
				return err
			}
		}

		if output.LastEvaluatedKey == nil {
			break
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	return nil
}

// Close releases the client. The underlying DynamoDB client holds no
// long-lived connections, so there is nothing to tear down.
func (c *Client) Close(_ context.Context) error {
	return nil
}

func (c *Client) saveRecord(ctx context.Context, record *types.BugRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", record.PartitionKey, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: &c.tableName,
		Item:      item,
	}

	if _, err = c.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to write record to DynamoDB table %s: %w", c.tableName, err)
	}

	return nil
}

// writeBatch submits one batch of write requests and drains any unprocessed
// items with exponential backoff. A batch that DynamoDB accepts partially is
// re-submitted until it completes or the attempt limit is reached; a call
// that fails outright is returned immediately.
func (c *Client) writeBatch(ctx context.Context, requestItems []dynamodbtypes.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]dynamodbtypes.WriteRequest{
			c.tableName: requestItems,
		},
	}

	backoff := c.opts.batchRetryBaseDelay

	for attempt := 0; attempt <= c.opts.maxBatchRetries; attempt++ {
		batchResult, err := c.client.BatchWriteItem(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to batch write to DynamoDB table %s: %w", c.tableName, err)
		}

		if len(batchResult.UnprocessedItems) == 0 {
			return nil
		}

		if attempt == c.opts.maxBatchRetries {
			return fmt.Errorf("%d unprocessed items after %d retries", len(batchResult.UnprocessedItems[c.tableName]), c.opts.maxBatchRetries)
		}

		// Wait before re-submitting unprocessed items.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
		input.RequestItems = batchResult.UnprocessedItems
	}

	return nil
}
