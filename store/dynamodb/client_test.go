package dynamodb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/types"
)

// mockAPI is a mock implementation of API for testing.
type mockAPI struct {
	putItemFunc        func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	scanFunc           func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	batchWriteItemFunc func(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	describeTableFunc  func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

func (m *mockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockAPI) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanFunc != nil {
		return m.scanFunc(ctx, params, optFns...)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *mockAPI) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if m.batchWriteItemFunc != nil {
		return m.batchWriteItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (m *mockAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFunc != nil {
		return m.describeTableFunc(ctx, params, optFns...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func newTestClient(mock *mockAPI) *Client {
	cfg := aws.Config{}
	client := New(&cfg, "test-table",
		WithAPI(mock),
		WithBatchRetryBaseDelay(time.Millisecond),
	)
	_ = client.Connect()
	return client
}

func testRecord(ticketID int64) *types.BugRecord {
	key := types.ZendeskKey(ticketID)
	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceZendesk,
		Priority:     types.PriorityMedium,
		State:        "open",
		Title:        "Checkout button crashes the app",
		Text:         "Tapping checkout closes the app immediately",
		CreatedAt:    time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC),
	}
}

// ==================== Connect Tests ====================

func TestConnect_Success(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	cfg := aws.Config{}
	client := New(&cfg, "test-table", WithAPI(mock))

	err := client.Connect()
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestConnect_InvalidOptions(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	cfg := aws.Config{}
	client := New(&cfg, "test-table",
		WithAPI(mock),
		WithBatchRetryBaseDelay(0),
	)

	err := client.Connect()

	if err == nil {
		t.Error("expected error for invalid options, got nil")
	}
}

func TestConnect_NegativeMaxBatchRetries(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	cfg := aws.Config{}
	client := New(&cfg, "test-table",
		WithAPI(mock),
		WithMaxBatchRetries(-1),
	)

	err := client.Connect()

	if err == nil {
		t.Error("expected error for negative retries, got nil")
	}
}

func TestConnect_EmptyTableName(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	cfg := aws.Config{}
	client := New(&cfg, "", WithAPI(mock))

	err := client.Connect()

	if err == nil {
		t.Error("expected error for empty table name, got nil")
	}
}

func TestConnect_WithoutInjectedAPI(t *testing.T) {
	t.Parallel()
	cfg := aws.Config{}
	client := New(&cfg, "test-table")

	err := client.Connect()
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if client.client == nil {
		t.Error("expected a DynamoDB client to be created")
	}
}

// ==================== Init Tests ====================

func TestInit_NotConnected(t *testing.T) {
	t.Parallel()
	cfg := aws.Config{}
	client := New(&cfg, "test-table")

	err := client.Init(context.Background(), false)

	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestInit_SkipSchemaValidation(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			t.Error("DescribeTable should not be called when validation is skipped")
			return nil, errors.New("unreachable")
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), true)
	if err != nil {
		t.Errorf("expected no error when skipping validation, got %v", err)
	}
}

func TestInit_TableNotFound(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return nil, &dynamodbtypes.ResourceNotFoundException{Message: aws.String("table not found")}
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error for missing table, got nil")
	}
}

func TestInit_DescribeTableError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return nil, errors.New("describe table failed")
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestInit_ValidSchema(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{
				Table: &dynamodbtypes.TableDescription{
					TableStatus: dynamodbtypes.TableStatusActive,
					KeySchema: []dynamodbtypes.KeySchemaElement{
						{AttributeName: aws.String(PartitionKey), KeyType: dynamodbtypes.KeyTypeHash},
						{AttributeName: aws.String(SortKey), KeyType: dynamodbtypes.KeyTypeRange},
					},
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)
	if err != nil {
		t.Errorf("expected no error for valid schema, got %v", err)
	}
}

func TestInit_EmptyKeySchema(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{
				Table: &dynamodbtypes.TableDescription{
					TableStatus: dynamodbtypes.TableStatusActive,
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error for empty key schema, got nil")
	}
}

func TestInit_InvalidPartitionKey(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{
				Table: &dynamodbtypes.TableDescription{
					TableStatus: dynamodbtypes.TableStatusActive,
					KeySchema: []dynamodbtypes.KeySchemaElement{
						{AttributeName: aws.String("wrong_pk"), KeyType: dynamodbtypes.KeyTypeHash},
						{AttributeName: aws.String(SortKey), KeyType: dynamodbtypes.KeyTypeRange},
					},
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error for invalid partition key, got nil")
	}
}

func TestInit_SimpleKey(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{
				Table: &dynamodbtypes.TableDescription{
					TableStatus: dynamodbtypes.TableStatusActive,
					KeySchema: []dynamodbtypes.KeySchemaElement{
						{AttributeName: aws.String(PartitionKey), KeyType: dynamodbtypes.KeyTypeHash},
					},
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error for simple primary key, got nil")
	}
}

func TestInit_InvalidSortKey(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{
				Table: &dynamodbtypes.TableDescription{
					TableStatus: dynamodbtypes.TableStatusActive,
					KeySchema: []dynamodbtypes.KeySchemaElement{
						{AttributeName: aws.String(PartitionKey), KeyType: dynamodbtypes.KeyTypeHash},
						{AttributeName: aws.String("wrong_sk"), KeyType: dynamodbtypes.KeyTypeRange},
					},
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error for invalid sort key, got nil")
	}
}

func TestInit_TableNotActive(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		describeTableFunc: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{
				Table: &dynamodbtypes.TableDescription{
					TableStatus: dynamodbtypes.TableStatusCreating,
					KeySchema: []dynamodbtypes.KeySchemaElement{
						{AttributeName: aws.String(PartitionKey), KeyType: dynamodbtypes.KeyTypeHash},
						{AttributeName: aws.String(SortKey), KeyType: dynamodbtypes.KeyTypeRange},
					},
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	err := client.Init(context.Background(), false)

	if err == nil {
		t.Error("expected error for inactive table, got nil")
	}
}

// ==================== SaveRecords Tests ====================

func TestSaveRecords_Empty(t *testing.T) {
	t.Parallel()
	putCalled := false
	mock := &mockAPI{
		putItemFunc: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			putCalled = true
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	err := client.SaveRecords(context.Background())
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if putCalled {
		t.Error("expected no writes for empty input")
	}
}

func TestSaveRecords_NotConnected(t *testing.T) {
	t.Parallel()
	cfg := aws.Config{}
	client := New(&cfg, "test-table")

	err := client.SaveRecords(context.Background(), testRecord(1))

	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSaveRecords_SingleRecord(t *testing.T) {
	t.Parallel()
	var capturedInput *dynamodb.PutItemInput
	mock := &mockAPI{
		putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			capturedInput = params
			return &dynamodb.PutItemOutput{}, nil
		},
		batchWriteItemFunc: func(_ context.Context, _ *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			t.Error("BatchWriteItem should not be called for a single record")
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	record := testRecord(1001)

	err := client.SaveRecords(context.Background(), record)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if capturedInput == nil {
		t.Fatal("expected PutItem to be called")
	}
	if *capturedInput.TableName != "test-table" {
		t.Errorf("expected table name 'test-table', got %s", *capturedInput.TableName)
	}
	pkAttr, ok := capturedInput.Item[PartitionKey].(*dynamodbtypes.AttributeValueMemberS)
	if !ok {
		t.Fatal("expected partition key to be a string")
	}
	if pkAttr.Value != "ZD-1001" {
		t.Errorf("expected partition key 'ZD-1001', got %s", pkAttr.Value)
	}
	sourceAttr, ok := capturedInput.Item[SourceSystemAttr].(*dynamodbtypes.AttributeValueMemberS)
	if !ok {
		t.Fatal("expected sourceSystem to be a string")
	}
	if sourceAttr.Value != "zendesk" {
		t.Errorf("expected sourceSystem 'zendesk', got %s", sourceAttr.Value)
	}
}

func TestSaveRecords_NilRecord(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	err := client.SaveRecords(context.Background(), testRecord(1), nil)

	if err == nil {
		t.Error("expected error for nil record, got nil")
	}
	if err.Error() != "record cannot be nil" {
		t.Errorf("expected 'record cannot be nil', got %s", err.Error())
	}
}

func TestSaveRecords_InvalidRecord(t *testing.T) {
	t.Parallel()
	putCalled := false
	mock := &mockAPI{
		putItemFunc: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			putCalled = true
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	record := testRecord(1)
	record.PartitionKey = ""

	err := client.SaveRecords(context.Background(), record)

	if err == nil {
		t.Error("expected error for invalid record, got nil")
	}
	if putCalled {
		t.Error("expected no write for invalid record")
	}
}

func TestSaveRecords_PutItemError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		putItemFunc: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, errors.New("dynamodb error")
		},
	}
	client := newTestClient(mock)

	err := client.SaveRecords(context.Background(), testRecord(1))

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestSaveRecords_MultipleRecords(t *testing.T) {
	t.Parallel()
	batchCount := 0
	itemCount := 0
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchCount++
			itemCount += len(params.RequestItems["test-table"])
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
		putItemFunc: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			t.Error("PutItem should not be called for multiple records")
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	err := client.SaveRecords(context.Background(), testRecord(1), testRecord(2), testRecord(3))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if batchCount != 1 {
		t.Errorf("expected 1 batch, got %d", batchCount)
	}
	if itemCount != 3 {
		t.Errorf("expected 3 items written, got %d", itemCount)
	}
}

func TestSaveRecords_BatchLimit(t *testing.T) {
	t.Parallel()
	batchCount := 0
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchCount++
			itemCount := len(params.RequestItems["test-table"])
			if itemCount > 25 {
				t.Errorf("batch exceeded limit: got %d items", itemCount)
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	records := make([]*types.BugRecord, 30)
	for i := range 30 {
		records[i] = testRecord(int64(i + 1))
	}

	err := client.SaveRecords(context.Background(), records...)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if batchCount != 2 {
		t.Errorf("expected 2 batches, got %d", batchCount)
	}
}

func TestSaveRecords_ExactlyBatchLimit(t *testing.T) {
	t.Parallel()
	batchCount := 0
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchCount++
			if len(params.RequestItems["test-table"]) != 25 {
				t.Errorf("expected 25 items in batch, got %d", len(params.RequestItems["test-table"]))
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	records := make([]*types.BugRecord, 25)
	for i := range 25 {
		records[i] = testRecord(int64(i + 1))
	}

	err := client.SaveRecords(context.Background(), records...)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if batchCount != 1 {
		t.Errorf("expected 1 batch, got %d", batchCount)
	}
}

func TestSaveRecords_ResubmitsUnprocessedItems(t *testing.T) {
	t.Parallel()
	callCount := 0
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			callCount++
			if callCount == 1 {
				return &dynamodb.BatchWriteItemOutput{
					UnprocessedItems: map[string][]dynamodbtypes.WriteRequest{
						"test-table": params.RequestItems["test-table"][:1],
					},
				}, nil
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	err := client.SaveRecords(context.Background(), testRecord(1), testRecord(2))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls (1 initial + 1 retry), got %d", callCount)
	}
}

func TestSaveRecords_UnprocessedItemsExhausted(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]dynamodbtypes.WriteRequest{
					"test-table": params.RequestItems["test-table"],
				},
			}, nil
		},
	}
	cfg := aws.Config{}
	client := New(&cfg, "test-table",
		WithAPI(mock),
		WithBatchRetryBaseDelay(time.Millisecond),
		WithMaxBatchRetries(2),
	)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	err := client.SaveRecords(context.Background(), testRecord(1), testRecord(2))

	if err == nil {
		t.Error("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "unprocessed items") {
		t.Errorf("expected unprocessed items error, got %v", err)
	}
}

func TestSaveRecords_BatchWriteError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, _ *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			return nil, errors.New("dynamodb error")
		},
	}
	client := newTestClient(mock)

	err := client.SaveRecords(context.Background(), testRecord(1), testRecord(2))

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestSaveRecords_ContextCancellationDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			cancel()
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]dynamodbtypes.WriteRequest{
					"test-table": params.RequestItems["test-table"],
				},
			}, nil
		},
	}
	cfg := aws.Config{}
	client := New(&cfg, "test-table",
		WithAPI(mock),
		WithBatchRetryBaseDelay(time.Second),
	)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	err := client.SaveRecords(ctx, testRecord(1), testRecord(2))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ==================== ScanSource Tests ====================

func TestScanSource_Success(t *testing.T) {
	t.Parallel()
	stored := testRecord(1001)
	item, err := attributevalue.MarshalMap(stored)
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	mock := &mockAPI{
		scanFunc: func(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{
				Items: []map[string]dynamodbtypes.AttributeValue{item},
			}, nil
		},
	}
	client := newTestClient(mock)

	records, err := client.ScanSource(context.Background(), types.SourceZendesk, 0, 1)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].PartitionKey != "ZD-1001" {
		t.Errorf("expected partition key 'ZD-1001', got %s", records[0].PartitionKey)
	}
	if records[0].SourceSystem != types.SourceZendesk {
		t.Errorf("expected source 'zendesk', got %s", records[0].SourceSystem)
	}
	if !records[0].CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("expected createdAt %v, got %v", stored.CreatedAt, records[0].CreatedAt)
	}
}

func TestScanSource_FiltersOnSourceSystem(t *testing.T) {
	t.Parallel()
	var capturedInput *dynamodb.ScanInput
	mock := &mockAPI{
		scanFunc: func(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			capturedInput = params
			return &dynamodb.ScanOutput{}, nil
		},
	}
	client := newTestClient(mock)

	_, err := client.ScanSource(context.Background(), types.SourceSlack, 2, 4)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if capturedInput == nil {
		t.Fatal("expected Scan to be called")
	}
	if aws.ToString(capturedInput.FilterExpression) != "sourceSystem = :source" {
		t.Errorf("unexpected filter expression: %s", aws.ToString(capturedInput.FilterExpression))
	}
	sourceAttr, ok := capturedInput.ExpressionAttributeValues[":source"].(*dynamodbtypes.AttributeValueMemberS)
	if !ok {
		t.Fatal("expected :source to be a string")
	}
	if sourceAttr.Value != "slack" {
		t.Errorf("expected source filter 'slack', got %s", sourceAttr.Value)
	}
	if aws.ToInt32(capturedInput.Segment) != 2 {
		t.Errorf("expected segment 2, got %d", aws.ToInt32(capturedInput.Segment))
	}
	if aws.ToInt32(capturedInput.TotalSegments) != 4 {
		t.Errorf("expected 4 total segments, got %d", aws.ToInt32(capturedInput.TotalSegments))
	}
}

func TestScanSource_Pagination(t *testing.T) {
	t.Parallel()
	first, err := attributevalue.MarshalMap(testRecord(1))
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	second, err := attributevalue.MarshalMap(testRecord(2))
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	callCount := 0
	mock := &mockAPI{
		scanFunc: func(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			callCount++
			if callCount == 1 {
				return &dynamodb.ScanOutput{
					Items: []map[string]dynamodbtypes.AttributeValue{first},
					LastEvaluatedKey: map[string]dynamodbtypes.AttributeValue{
						PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: "ZD-1"},
					},
				}, nil
			}
			if params.ExclusiveStartKey == nil {
				t.Error("expected ExclusiveStartKey on second page")
			}
			return &dynamodb.ScanOutput{
				Items: []map[string]dynamodbtypes.AttributeValue{second},
			}, nil
		},
	}
	client := newTestClient(mock)

	records, err := client.ScanSource(context.Background(), types.SourceZendesk, 0, 1)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 scan pages, got %d", callCount)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestScanSource_Empty(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	records, err := client.ScanSource(context.Background(), types.SourceShortcut, 0, 4)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestScanSource_InvalidSource(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	_, err := client.ScanSource(context.Background(), types.Source("jira"), 0, 1)

	if err == nil {
		t.Error("expected error for unknown source, got nil")
	}
}

func TestScanSource_InvalidSegment(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	tests := []struct {
		name          string
		segment       int
		totalSegments int
	}{
		{name: "negative segment", segment: -1, totalSegments: 4},
		{name: "segment out of range", segment: 4, totalSegments: 4},
		{name: "zero total segments", segment: 0, totalSegments: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := client.ScanSource(context.Background(), types.SourceSlack, tc.segment, tc.totalSegments)
			if !errors.Is(err, store.ErrInvalidSegment) {
				t.Errorf("expected ErrInvalidSegment, got %v", err)
			}
		})
	}
}

func TestScanSource_ScanError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		scanFunc: func(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return nil, errors.New("dynamodb error")
		},
	}
	client := newTestClient(mock)

	_, err := client.ScanSource(context.Background(), types.SourceZendesk, 0, 1)

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestScanSource_UnmarshalError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		scanFunc: func(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{
				Items: []map[string]dynamodbtypes.AttributeValue{
					{
						PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: "ZD-1"},
						SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: "zendesk#1"},
						"createdAt":  &dynamodbtypes.AttributeValueMemberS{Value: "not-a-timestamp"},
					},
				},
			}, nil
		},
	}
	client := newTestClient(mock)

	_, err := client.ScanSource(context.Background(), types.SourceZendesk, 0, 1)

	if err == nil {
		t.Error("expected error for malformed item, got nil")
	}
}

func TestScanSource_NotConnected(t *testing.T) {
	t.Parallel()
	cfg := aws.Config{}
	client := New(&cfg, "test-table")

	_, err := client.ScanSource(context.Background(), types.SourceZendesk, 0, 1)

	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestScanSource_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	_, err := client.ScanSource(ctx, types.SourceZendesk, 0, 1)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ==================== DeleteRecords Tests ====================

func TestDeleteRecords_Empty(t *testing.T) {
	t.Parallel()
	batchCalled := false
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, _ *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchCalled = true
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	err := client.DeleteRecords(context.Background())
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if batchCalled {
		t.Error("expected no writes for empty input")
	}
}

func TestDeleteRecords_Success(t *testing.T) {
	t.Parallel()
	var capturedRequests []dynamodbtypes.WriteRequest
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			capturedRequests = params.RequestItems["test-table"]
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	err := client.DeleteRecords(context.Background(), types.ZendeskKey(1), types.ZendeskKey(2))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(capturedRequests) != 2 {
		t.Fatalf("expected 2 delete requests, got %d", len(capturedRequests))
	}
	if capturedRequests[0].DeleteRequest == nil {
		t.Fatal("expected a delete request")
	}
	pkAttr, ok := capturedRequests[0].DeleteRequest.Key[PartitionKey].(*dynamodbtypes.AttributeValueMemberS)
	if !ok {
		t.Fatal("expected partition key to be a string")
	}
	if pkAttr.Value != "ZD-1" {
		t.Errorf("expected partition key 'ZD-1', got %s", pkAttr.Value)
	}
}

func TestDeleteRecords_EmptyPartitionKey(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	err := client.DeleteRecords(context.Background(), types.RecordKey{SortKey: "zendesk#1"})

	if err == nil {
		t.Error("expected error for empty partition key, got nil")
	}
}

func TestDeleteRecords_EmptySortKey(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	err := client.DeleteRecords(context.Background(), types.RecordKey{PartitionKey: "ZD-1"})

	if err == nil {
		t.Error("expected error for empty sort key, got nil")
	}
}

func TestDeleteRecords_BatchLimit(t *testing.T) {
	t.Parallel()
	batchCount := 0
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchCount++
			itemCount := len(params.RequestItems["test-table"])
			if itemCount > 25 {
				t.Errorf("batch exceeded limit: got %d items", itemCount)
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	keys := make([]types.RecordKey, 60)
	for i := range 60 {
		keys[i] = types.ZendeskKey(int64(i + 1))
	}

	err := client.DeleteRecords(context.Background(), keys...)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if batchCount != 3 {
		t.Errorf("expected 3 batches, got %d", batchCount)
	}
}

func TestDeleteRecords_BatchWriteError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, _ *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			return nil, errors.New("dynamodb error")
		},
	}
	client := newTestClient(mock)

	err := client.DeleteRecords(context.Background(), types.ZendeskKey(1))

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestDeleteRecords_NotConnected(t *testing.T) {
	t.Parallel()
	cfg := aws.Config{}
	client := New(&cfg, "test-table")

	err := client.DeleteRecords(context.Background(), types.ZendeskKey(1))

	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

// ==================== DropAllData Tests ====================

func TestDropAllData_Success(t *testing.T) {
	t.Parallel()
	item, err := attributevalue.MarshalMap(testRecord(1))
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	var deleted []dynamodbtypes.WriteRequest
	mock := &mockAPI{
		scanFunc: func(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			if params.ProjectionExpression == nil {
				t.Error("expected a key-only projection")
			}
			return &dynamodb.ScanOutput{Items: []map[string]dynamodbtypes.AttributeValue{item}}, nil
		},
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			deleted = append(deleted, params.RequestItems["test-table"]...)
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	if err := client.DropAllData(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 delete request, got %d", len(deleted))
	}
	pk, ok := deleted[0].DeleteRequest.Key[PartitionKey].(*dynamodbtypes.AttributeValueMemberS)
	if !ok || pk.Value != "ZD-1" {
		t.Errorf("expected delete request for ZD-1, got %v", deleted[0].DeleteRequest.Key)
	}
}

func TestDropAllData_EmptyTable(t *testing.T) {
	t.Parallel()
	batchCalls := 0
	mock := &mockAPI{
		batchWriteItemFunc: func(_ context.Context, _ *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchCalls++
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	if err := client.DropAllData(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if batchCalls != 0 {
		t.Errorf("expected no batch writes on an empty table, got %d", batchCalls)
	}
}

func TestDropAllData_Pagination(t *testing.T) {
	t.Parallel()
	first, err := attributevalue.MarshalMap(testRecord(1))
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	second, err := attributevalue.MarshalMap(testRecord(2))
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	scanCount := 0
	var deleted []dynamodbtypes.WriteRequest
	mock := &mockAPI{
		scanFunc: func(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			scanCount++
			if scanCount == 1 {
				return &dynamodb.ScanOutput{
					Items: []map[string]dynamodbtypes.AttributeValue{first},
					LastEvaluatedKey: map[string]dynamodbtypes.AttributeValue{
						PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: "ZD-1"},
					},
				}, nil
			}
			if params.ExclusiveStartKey == nil {
				t.Error("expected ExclusiveStartKey on second page")
			}
			return &dynamodb.ScanOutput{
				Items: []map[string]dynamodbtypes.AttributeValue{second},
			}, nil
		},
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			deleted = append(deleted, params.RequestItems["test-table"]...)
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	if err := client.DropAllData(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if scanCount != 2 {
		t.Errorf("expected 2 scan pages, got %d", scanCount)
	}
	if len(deleted) != 2 {
		t.Errorf("expected 2 delete requests, got %d", len(deleted))
	}
}

func TestDropAllData_BatchLimit(t *testing.T) {
	t.Parallel()
	items := make([]map[string]dynamodbtypes.AttributeValue, 30)
	for i := range items {
		item, err := attributevalue.MarshalMap(testRecord(int64(i + 1)))
		if err != nil {
			t.Fatalf("failed to marshal test record: %v", err)
		}
		items[i] = item
	}
	batchSizes := []int{}
	mock := &mockAPI{
		scanFunc: func(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: items}, nil
		},
		batchWriteItemFunc: func(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchSizes = append(batchSizes, len(params.RequestItems["test-table"]))
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	client := newTestClient(mock)

	if err := client.DropAllData(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(batchSizes) != 2 || batchSizes[0] != 25 || batchSizes[1] != 5 {
		t.Errorf("expected batches of 25 and 5, got %v", batchSizes)
	}
}

func TestDropAllData_ScanError(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{
		scanFunc: func(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return nil, errors.New("dynamodb error")
		},
	}
	client := newTestClient(mock)

	err := client.DropAllData(context.Background())

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestDropAllData_BatchWriteError(t *testing.T) {
	t.Parallel()
	item, err := attributevalue.MarshalMap(testRecord(1))
	if err != nil {
		t.Fatalf("failed to marshal test record: %v", err)
	}
	mock := &mockAPI{
		scanFunc: func(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: []map[string]dynamodbtypes.AttributeValue{item}}, nil
		},
		batchWriteItemFunc: func(_ context.Context, _ *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			return nil, errors.New("dynamodb error")
		},
	}
	client := newTestClient(mock)

	err = client.DropAllData(context.Background())

	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestDropAllData_NotConnected(t *testing.T) {
	t.Parallel()
	cfg := aws.Config{}
	client := New(&cfg, "test-table")

	err := client.DropAllData(context.Background())

	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

// ==================== Close Tests ====================

func TestClose(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	client := newTestClient(mock)

	if err := client.Close(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

// ==================== Option Tests ====================

func TestWithAPI(t *testing.T) {
	t.Parallel()
	mock := &mockAPI{}
	opts := newOptions()

	WithAPI(mock)(opts)

	if opts.dynamoDBAPI != mock {
		t.Error("expected API to be set")
	}
}

func TestWithMaxBatchRetries(t *testing.T) {
	t.Parallel()
	opts := newOptions()

	WithMaxBatchRetries(3)(opts)

	if opts.maxBatchRetries != 3 {
		t.Errorf("expected 3 retries, got %d", opts.maxBatchRetries)
	}
}

func TestWithBatchRetryBaseDelay(t *testing.T) {
	t.Parallel()
	opts := newOptions()

	WithBatchRetryBaseDelay(time.Second)(opts)

	if opts.batchRetryBaseDelay != time.Second {
		t.Errorf("expected 1s delay, got %v", opts.batchRetryBaseDelay)
	}
}

func TestOptionDefaults(t *testing.T) {
	t.Parallel()
	opts := newOptions()

	if opts.maxBatchRetries != 5 {
		t.Errorf("expected default of 5 retries, got %d", opts.maxBatchRetries)
	}
	if opts.batchRetryBaseDelay != 50*time.Millisecond {
		t.Errorf("expected default delay of 50ms, got %v", opts.batchRetryBaseDelay)
	}
	if opts.dynamoDBAPI != nil {
		t.Error("expected no API by default")
	}
}
