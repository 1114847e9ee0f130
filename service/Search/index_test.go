package Search

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

func newIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	require.NoError(t, idx.IndexNote(ctx, &database.Note{ID: 1, Title: "Grocery list", Entries: []database.NoteEntry{{Content: "milk and eggs"}}}))
	require.NoError(t, idx.IndexNote(ctx, &database.Note{ID: 2, Title: "Budget", Entries: []database.NoteEntry{{AudioTranscription: "buy more eggs next week"}}}))
	require.NoError(t, idx.IndexNote(ctx, &database.Note{ID: 3, Title: "Travel", Entries: []database.NoteEntry{{Content: "book flights"}}}))

	ids, err := idx.Search(ctx, "eggs", nil, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{1, 2}, ids)

	ids, err = idx.Search(ctx, "GROCERY", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, ids)

	require.NoError(t, idx.RemoveNote(ctx, 1))
	ids, err = idx.Search(ctx, "eggs", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids)

	ids, err = idx.Search(ctx, "   ", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReindexReplacesContent(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	note := &database.Note{ID: 9, Title: "Draft", Entries: []database.NoteEntry{{Content: "alpha"}}}
	require.NoError(t, idx.IndexNote(ctx, note))
	note.Entries = []database.NoteEntry{{Content: "omega"}}
	require.NoError(t, idx.IndexNote(ctx, note))

	ids, err := idx.Search(ctx, "alpha", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Search(ctx, "omega", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{9}, ids)
}

func TestRebuild(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	require.NoError(t, db.Create(&database.Note{OwnerID: 1, Title: "Recipes", ProcessingType: database.VariantSummary,
		Entries: []database.NoteEntry{{Content: "pancake batter"}}}).Error)

	idx := newIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), db))

	ids, err := idx.Search(context.Background(), "pancake", nil, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSearchWithinScope(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	for id := uint(1); id <= 80; id++ {
		require.NoError(t, idx.IndexNote(ctx, &database.Note{ID: id, Title: "Farm", Entries: []database.NoteEntry{{Content: "tomatoes tomatoes tomatoes"}}}))
	}
	require.NoError(t, idx.IndexNote(ctx, &database.Note{ID: 100, Title: "Garden", Entries: []database.NoteEntry{{Content: "tomatoes"}}}))

	ids, err := idx.Search(ctx, "tomatoes", []uint{100, 200}, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{100}, ids)

	ids, err = idx.Search(ctx, "tomatoes", []uint{}, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Search(ctx, "tomatoes", nil, 0)
	require.NoError(t, err)
	assert.Len(t, ids, defaultLimit)
}
