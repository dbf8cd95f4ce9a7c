package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imwg-risk-server/internal/database"
	"github.com/imwg-risk-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestNewSQLiteStore_NilDB(t *testing.T) {
	_, err := NewSQLiteStore(nil)
	assert.Error(t, err)
}

func TestSQLiteStore_InsertAndList(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	actor := "Dr. Lee"
	entries := []*domain.HistoryEntry{
		{ID: "h1", AssessmentID: "a1", Action: domain.ActionCreated, Details: map[string]interface{}{"created_by": "Dr. Lee"}, PerformedBy: &actor, Timestamp: base},
		{ID: "h2", AssessmentID: "a1", Action: domain.ActionCalculated, Details: map[string]interface{}{"risk_result": "HIGH_RISK", "total_risk_factors": 1}, Timestamp: base.Add(time.Second)},
		{ID: "h3", AssessmentID: "other", Action: domain.ActionCreated, Details: nil, Timestamp: base},
	}
	for _, e := range entries {
		require.NoError(t, store.Insert(ctx, e))
	}

	got, err := store.ListByAssessment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "h2", got[0].ID)
	assert.Equal(t, domain.ActionCalculated, got[0].Action)
	assert.Equal(t, "HIGH_RISK", got[0].Details["risk_result"])
	assert.Equal(t, float64(1), got[0].Details["total_risk_factors"])
	assert.Nil(t, got[0].PerformedBy)
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Second)))

	assert.Equal(t, "h1", got[1].ID)
	require.NotNil(t, got[1].PerformedBy)
	assert.Equal(t, "Dr. Lee", *got[1].PerformedBy)
}

func TestSQLiteStore_SameTimestampUsesInsertOrder(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Insert(ctx, &domain.HistoryEntry{
			ID: id, AssessmentID: "a1", Action: domain.ActionUpdated, Timestamp: ts,
		}))
	}

	got, err := store.ListByAssessment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "third", got[0].ID)
	assert.Equal(t, "first", got[2].ID)
}

func TestSQLiteStore_ListUnknown(t *testing.T) {
	store := createTestStore(t)

	got, err := store.ListByAssessment(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSQLiteStore_DuplicateIDRejected(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	entry := &domain.HistoryEntry{ID: "dup", AssessmentID: "a1", Action: domain.ActionCreated, Timestamp: time.Now()}
	require.NoError(t, store.Insert(ctx, entry))
	assert.Error(t, store.Insert(ctx, entry))
}
