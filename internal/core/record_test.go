package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDirtyTracking(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1), "name": "Ada", "email": "ada@example.com"}},
	})
	db := newTestDB(f)

	rec, err := db.Model("author").Find(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, rec.IsDirty())

	rec.Set("name", "Ada Lovelace")
	require.True(t, rec.IsDirty())
	assert.Equal(t, map[string]interface{}{"name": "Ada Lovelace"}, rec.Dirty())
	assert.Equal(t, "Ada", rec.Original("name"))

	// Setting a field back to its original value clears it from the
	// dirty set.
	rec.Set("name", "Ada")
	assert.False(t, rec.IsDirty())
}

func TestRecordInsert(t *testing.T) {
	f := newFakeAdapter()
	db := newTestDB(f)
	ctx := context.Background()

	rec, err := db.NewRecord("author")
	require.NoError(t, err)
	assert.False(t, rec.Exists())

	rec.Fill(map[string]interface{}{"name": "Grace", "email": "grace@example.com"})
	require.NoError(t, rec.Save(ctx))

	assert.True(t, rec.Exists())
	assert.False(t, rec.IsDirty())
	// The generated key is adopted as the primary key.
	assert.Equal(t, int64(101), rec.PrimaryKey())

	stmt := f.lastExec()
	assert.Contains(t, stmt.SQL, `INSERT INTO "authors"`)
	assert.Equal(t, []interface{}{"grace@example.com", "Grace"}, stmt.Params)
}

func TestRecordUpdate(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1), "name": "Ada", "email": "ada@example.com"}},
	})
	db := newTestDB(f)
	ctx := context.Background()

	rec, err := db.Model("author").Find(ctx, 1)
	require.NoError(t, err)

	t.Run("clean save is a no-op", func(t *testing.T) {
		require.NoError(t, rec.Save(ctx))
		assert.Equal(t, 0, f.execCount())
	})

	t.Run("only dirty fields written", func(t *testing.T) {
		rec.Set("name", "Ada Lovelace")
		require.NoError(t, rec.Save(ctx))

		stmt := f.lastExec()
		assert.Contains(t, stmt.SQL, `UPDATE "authors" SET "name" = ?`)
		assert.NotContains(t, stmt.SQL, "email")
		assert.Equal(t, []interface{}{"Ada Lovelace", int64(1)}, stmt.Params)
		assert.False(t, rec.IsDirty())
		assert.Equal(t, "Ada Lovelace", rec.Original("name"))
	})
}

func TestRecordDelete(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1), "name": "Ada"}},
	})
	db := newTestDB(f)
	ctx := context.Background()

	rec, err := db.Model("author").Find(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, rec.Delete(ctx))
	assert.False(t, rec.Exists())

	stmt := f.lastExec()
	assert.Contains(t, stmt.SQL, `DELETE FROM "authors" WHERE "id" = ?`)

	// Deleting again is an error.
	assert.ErrorIs(t, rec.Delete(ctx), ErrRecordNotPersisted)
}

func TestRecordDeleteUnpersisted(t *testing.T) {
	db := newTestDB(newFakeAdapter())

	rec, err := db.NewRecord("author")
	require.NoError(t, err)
	assert.ErrorIs(t, rec.Delete(context.Background()), ErrRecordNotPersisted)
}

func TestRecordRefresh(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1), "name": "Ada"}},
	})
	db := newTestDB(f)
	ctx := context.Background()

	rec, err := db.Model("author").Find(ctx, 1)
	require.NoError(t, err)

	rec.Set("name", "scribble")
	require.NoError(t, rec.Refresh(ctx))
	assert.Equal(t, "Ada", rec.GetString("name"))
	assert.False(t, rec.IsDirty())

	t.Run("row gone", func(t *testing.T) {
		f.queryFn = tableRows(map[string][]map[string]interface{}{
			"authors": {},
		})
		assert.ErrorIs(t, rec.Refresh(ctx), ErrRecordGone)
	})
}

func TestRecordMutatedKeyStillTargetsPersistedRow(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1), "name": "Ada"}},
	})
	db := newTestDB(f)
	ctx := context.Background()

	rec, err := db.Model("author").Find(ctx, 1)
	require.NoError(t, err)

	rec.Set("id", int64(9))
	require.NoError(t, rec.Save(ctx))

	stmt := f.lastExec()
	// The new key is the SET value, the old key addresses the row.
	assert.Equal(t, []interface{}{int64(9), int64(1)}, stmt.Params)
}

func TestRecordSaveWithoutModel(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1)}},
	})
	db := newTestDB(f)

	records, err := db.Table("authors").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.ErrorIs(t, records[0].Save(context.Background()), ErrNoModel)
}
