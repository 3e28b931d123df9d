// Package storetest holds the behavioral test suite shared by the store
// backends. Each exported function exercises one part of the [store.Store]
// contract against a live backend; the backends' integration tests wire
// them up to real infrastructure.
//
// The functions use disjoint id ranges so they can run against the same
// table in any order, and every function removes the records it created.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/types"
)

// TestSaveAndScan verifies that a saved record comes back from a segmented
// scan with every field intact.
func TestSaveAndScan(t *testing.T, st store.Store) {
	ctx := context.Background()

	record := zendeskRecord(910001)
	record.Title = "Checkout button crashes the app"
	record.Text = "Tapping checkout closes the app immediately"
	record.AssigneeIDs = []string{"9001", "9002"}
	record.Tags = []string{"checkout", "mobile"}

	require.NoError(t, st.SaveRecords(ctx, record))
	t.Cleanup(func() { _ = st.DeleteRecords(ctx, record.Key()) })

	found := findByKey(t, scanAll(t, st, types.SourceZendesk), record.PartitionKey)
	require.NotNil(t, found, "saved record not returned by scan")

	assert.Equal(t, record.SortKey, found.SortKey)
	assert.Equal(t, types.SourceZendesk, found.SourceSystem)
	assert.Equal(t, record.Priority, found.Priority)
	assert.Equal(t, record.State, found.State)
	assert.Equal(t, record.Title, found.Title)
	assert.Equal(t, record.Text, found.Text)
	assert.Equal(t, record.Author, found.Author)
	assert.Equal(t, record.Assignee, found.Assignee)
	assert.Equal(t, record.AssigneeIDs, found.AssigneeIDs)
	assert.Equal(t, record.Tags, found.Tags)
	assert.True(t, record.CreatedAt.Equal(found.CreatedAt), "created_at changed in round trip")
	assert.True(t, record.UpdatedAt.Equal(found.UpdatedAt), "updated_at changed in round trip")
}

// TestOverwriteOnSameKey verifies that saving the same key twice leaves one
// record carrying the second write's contents.
func TestOverwriteOnSameKey(t *testing.T, st store.Store) {
	ctx := context.Background()

	record := zendeskRecord(920001)
	record.Title = "Before"

	require.NoError(t, st.SaveRecords(ctx, record))
	t.Cleanup(func() { _ = st.DeleteRecords(ctx, record.Key()) })

	update := zendeskRecord(920001)
	update.Title = "After"
	update.State = "solved"

	require.NoError(t, st.SaveRecords(ctx, update))

	records := scanAll(t, st, types.SourceZendesk)

	copies := 0

	for _, r := range records {
		if r.PartitionKey == record.PartitionKey {
			copies++

			assert.Equal(t, "After", r.Title)
			assert.Equal(t, "solved", r.State)
		}
	}

	assert.Equal(t, 1, copies, "overwrite produced duplicate records")
}

// TestScanFiltersBySource verifies that a scan returns only the requested
// source system's records.
func TestScanFiltersBySource(t *testing.T, st store.Store) {
	ctx := context.Background()

	shortcutRec := shortcutRecord(930001)
	slackRec := slackRecord("C93TEST", "1700000000.930001")
	zendeskRec := zendeskRecord(930001)

	require.NoError(t, st.SaveRecords(ctx, shortcutRec, slackRec, zendeskRec))
	t.Cleanup(func() {
		_ = st.DeleteRecords(ctx, shortcutRec.Key(), slackRec.Key(), zendeskRec.Key())
	})

	records := scanAll(t, st, types.SourceSlack)

	assert.NotNil(t, findByKey(t, records, slackRec.PartitionKey))
	assert.Nil(t, findByKey(t, records, shortcutRec.PartitionKey))
	assert.Nil(t, findByKey(t, records, zendeskRec.PartitionKey))
}

// TestScanSegmentsPartition verifies that the scan segments of one source
// partition the stored records: together they return everything, and no
// record appears in two segments.
func TestScanSegmentsPartition(t *testing.T, st store.Store) {
	ctx := context.Background()

	const totalSegments = 4

	saved := make([]*types.BugRecord, 10)
	keys := make([]types.RecordKey, len(saved))

	for i := range saved {
		saved[i] = zendeskRecord(int64(940001 + i))
		keys[i] = saved[i].Key()
	}

	require.NoError(t, st.SaveRecords(ctx, saved...))
	t.Cleanup(func() { _ = st.DeleteRecords(ctx, keys...) })

	counts := map[string]int{}

	for segment := range totalSegments {
		records, err := st.ScanSource(ctx, types.SourceZendesk, segment, totalSegments)
		require.NoError(t, err)

		for _, r := range records {
			counts[r.PartitionKey]++
		}
	}

	for _, record := range saved {
		assert.Equal(t, 1, counts[record.PartitionKey],
			fmt.Sprintf("record %s must appear in exactly one segment", record.PartitionKey))
	}
}

// TestDeleteRecords verifies that deleted records stop appearing in scans
// and that deleting missing keys is not an error.
func TestDeleteRecords(t *testing.T, st store.Store) {
	ctx := context.Background()

	first := zendeskRecord(950001)
	second := zendeskRecord(950002)

	require.NoError(t, st.SaveRecords(ctx, first, second))

	require.NoError(t, st.DeleteRecords(ctx, first.Key(), second.Key()))

	records := scanAll(t, st, types.SourceZendesk)
	assert.Nil(t, findByKey(t, records, first.PartitionKey))
	assert.Nil(t, findByKey(t, records, second.PartitionKey))

	// Deleting the same keys again must be a no-op.
	require.NoError(t, st.DeleteRecords(ctx, first.Key(), second.Key()))
}

func scanAll(t *testing.T, st store.Store, source types.Source) []*types.BugRecord {
	t.Helper()

	records, err := st.ScanSource(context.Background(), source, 0, 1)
	require.NoError(t, err)

	return records
}

func findByKey(t *testing.T, records []*types.BugRecord, pk string) *types.BugRecord {
	t.Helper()

	for _, record := range records {
		if record.PartitionKey == pk {
			return record
		}
	}

	return nil
}

func shortcutRecord(id int64) *types.BugRecord {
	key := types.ShortcutKey(id)

	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceShortcut,
		Priority:     types.PriorityHigh,
		State:        "In Progress",
		Title:        "Login form loses focus",
		Text:         "Clicking the login field drops the cursor",
		CreatedAt:    time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Assignee:     "Unassigned",
	}
}

func slackRecord(channelID, ts string) *types.BugRecord {
	key := types.SlackKey(channelID, ts)

	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceSlack,
		Priority:     types.PriorityUnknown,
		State:        "Unknown",
		Text:         "the dashboard crashes on load",
		CreatedAt:    time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC),
		Author:       "Maya Chen",
		AuthorID:     "U93TEST",
		Tags:         []string{"bug-reports"},
	}
}

func zendeskRecord(id int64) *types.BugRecord {
	key := types.ZendeskKey(id)

	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceZendesk,
		Priority:     types.PriorityMedium,
		State:        "open",
		Title:        "Invoice totals are wrong",
		Text:         "Monthly invoice shows last month's total",
		CreatedAt:    time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 2, 1, 13, 0, 0, 0, time.UTC),
		Author:       "9001",
		AuthorID:     "9001",
		Assignee:     "Unassigned",
	}
}
