package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/types"
)

// recordColumns is the canonical column list shared by the upsert and scan
// statements. The order must match the arguments built in getRecordUpsertSQL
// and the destinations in scanRecord.
const recordColumns = "pk, sk, source_system, priority, state, state_id, subject, body, created_at, updated_at, author, author_id, assignee, assignee_ids, tags"

// pool defines the interface for database operations.
// This interface is satisfied by *pgxpool.Pool and can be mocked for testing.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
	Ping(ctx context.Context) error
}

// Client is a PostgreSQL-backed implementation of the [store.Store]
// interface, for environments that run without DynamoDB. Records live in a
// single table keyed by (pk, sk) with one column per record field.
type Client struct {
	conn pool
	opts *options
}

func New(opts ...Option) *Client {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{opts: o}
}

func (c *Client) Connect(ctx context.Context) error {
	// Close existing connection if any to prevent leaks
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid Postgres db configuration: %w", err)
	}

	config, err := pgxpool.ParseConfig(c.opts.connectionString())
	if err != nil {
		return fmt.Errorf("failed to parse Postgres db connection string: %w", err)
	}

	if c.opts.poolMaxConnections != nil {
		config.MaxConns = *c.opts.poolMaxConnections
	}

	if c.opts.poolMinConnections != nil {
		config.MinConns = *c.opts.poolMinConnections
	}

	if c.opts.poolMinIdleConnections != nil {
		config.MinIdleConns = *c.opts.poolMinIdleConnections
	}

	if c.opts.poolMaxConnectionLifetime != nil {
		config.MaxConnLifetime = *c.opts.poolMaxConnectionLifetime
	}

	if c.opts.poolMaxConnectionIdleTime != nil {
		config.MaxConnIdleTime = *c.opts.poolMaxConnectionIdleTime
	}

	if c.opts.poolHealthCheckPeriod != nil {
		config.HealthCheckPeriod = *c.opts.poolHealthCheckPeriod
	}

	if c.opts.poolMaxConnectionLifetimeJitter != nil {
		config.MaxConnLifetimeJitter = *c.opts.poolMaxConnectionLifetimeJitter
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create new Postgres connection pool: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Postgres db: %w", err)
	}

	c.conn = conn

	return nil
}

func (c *Client) Close(_ context.Context) error {
	if c.conn == nil {
		return nil
	}

	c.conn.Close()

	c.conn = nil

	return nil
}

func (c *Client) Init(ctx context.Context, skipSchemaValidation bool) error {
	if c.conn == nil {
		return store.ErrNotConnected
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin init transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, sql := range c.opts.createStatements() {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute create statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit init transaction: %w", err)
	}

	if !skipSchemaValidation {
		query := "SELECT table_name, column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = 'public' ORDER BY ordinal_position"

		rows, err := c.conn.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to query information schema: %w", err)
		}

		defer rows.Close()

		infoRows := map[string]*dbRow{}

		for rows.Next() {
			var table, column string
			infoRow := &dbRow{}

			if err := rows.Scan(&table, &column, &infoRow.DataType, &infoRow.IsNullable); err != nil {
				return fmt.Errorf("failed to scan row from information schema: %w", err)
			}

			infoRows[table+"."+column] = infoRow
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating over rows from information schema: %w", err)
		}

		if err := c.opts.verifySchema(infoRows); err != nil {
			return fmt.Errorf("failed to verify current database schema: %w", err)
		}
	}

	return nil
}

// DropAllData drops the bugs table and everything in it.
//
// This method is intended for use in tests only. Do not call it in
// production.
func (c *Client) DropAllData(ctx context.Context) error {
	if c.conn == nil {
		return store.ErrNotConnected
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin drop transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, sql := range c.opts.dropStatements() {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute drop statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit drop transaction: %w", err)
	}

	return nil
}

func (c *Client) SaveRecords(ctx context.Context, records ...*types.BugRecord) error {
	if c.conn == nil {
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

	// Use a single statement if there's only one record.
	if len(records) == 1 {
		sql, args := c.getRecordUpsertSQL(records[0])

		if _, err := c.conn.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to save record to Postgres db: %w", err)
		}

		return nil
	}

	// Use batch for better performance with multiple records
	batch := &pgx.Batch{}

	for _, record := range records {
		sql, args := c.getRecordUpsertSQL(record)
		batch.Queue(sql, args...)
	}

	results := c.conn.SendBatch(ctx, batch)

	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save record to Postgres db: %w", err)
		}
	}

	return nil
}

func (c *Client) ScanSource(ctx context.Context, source types.Source, segment, totalSegments int) ([]*types.BugRecord, error) {
	if c.conn == nil {
		return nil, store.ErrNotConnected
	}

	if !source.IsValid() {
		return nil, fmt.Errorf("unknown source system %q", source)
	}

	if totalSegments < 1 || segment < 0 || segment >= totalSegments {
		return nil, fmt.Errorf("%w: segment %d of %d", store.ErrInvalidSegment, segment, totalSegments)
	}

	// Segment membership is a stable hash of the partition key, so every row
	// belongs to exactly one segment and parallel workers never overlap.
	query := fmt.Sprintf("SELECT %s FROM %s WHERE source_system = $1 AND mod(abs(hashtext(pk)), $2::int) = $3", recordColumns, c.opts.table)

	rows, err := c.conn.Query(ctx, query, string(source), totalSegments, segment)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records from Postgres db: %w", err)
	}

	defer rows.Close()

	var records []*types.BugRecord

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over record rows: %w", err)
	}

	return records, nil
}

func (c *Client) DeleteRecords(ctx context.Context, keys ...types.RecordKey) error {
	if c.conn == nil {
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

	sql := fmt.Sprintf("DELETE FROM %s WHERE pk = $1 AND sk = $2", c.opts.table)

	if len(keys) == 1 {
		if _, err := c.conn.Exec(ctx, sql, keys[0].PartitionKey, keys[0].SortKey); err != nil {
			return fmt.Errorf("failed to delete record from Postgres db: %w", err)
		}

		return nil
	}

	batch := &pgx.Batch{}

	for _, key := range keys {
		batch.Queue(sql, key.PartitionKey, key.SortKey)
	}

	results := c.conn.SendBatch(ctx, batch)

	defer results.Close()

	for range keys {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to delete record from Postgres db: %w", err)
		}
	}

	return nil
}

func (c *Client) getRecordUpsertSQL(record *types.BugRecord) (string, []any) {
	statement := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) ON CONFLICT (pk, sk) DO UPDATE SET source_system = EXCLUDED.source_system, priority = EXCLUDED.priority, state = EXCLUDED.state, state_id = EXCLUDED.state_id, subject = EXCLUDED.subject, body = EXCLUDED.body, created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at, author = EXCLUDED.author, author_id = EXCLUDED.author_id, assignee = EXCLUDED.assignee, assignee_ids = EXCLUDED.assignee_ids, tags = EXCLUDED.tags", c.opts.table, recordColumns)

	args := []any{
		record.PartitionKey,
		record.SortKey,
		string(record.SourceSystem),
		string(record.Priority),
		record.State,
		record.StateID,
		record.Title,
		record.Text,
		record.CreatedAt,
		record.UpdatedAt,
		record.Author,
		record.AuthorID,
		record.Assignee,
		record.AssigneeIDs,
		record.Tags,
	}

	return statement, args
}

func scanRecord(rows pgx.Rows) (*types.BugRecord, error) {
	var (
		record   types.BugRecord
		source   string
		priority string
	)

	if err := rows.Scan(
		&record.PartitionKey,
		&record.SortKey,
		&source,
		&priority,
		&record.State,
		&record.StateID,
		&record.Title,
		&record.Text,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.Author,
		&record.AuthorID,
		&record.Assignee,
		&record.AssigneeIDs,
		&record.Tags,
	); err != nil {
		return nil, err
	}

	record.SourceSystem = types.Source(source)
	record.Priority = types.Priority(priority)

	return &record, nil
}
