package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/coregx/tabula/internal/cache"
	"github.com/coregx/tabula/internal/tracer"
)

func TestBuilderGet(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {
			{"id": int64(1), "name": "Ada"},
			{"id": int64(2), "name": "Grace"},
		},
	})
	db := newTestDB(f)

	records, err := db.Model("author").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Ada", records[0].GetString("name"))
	assert.True(t, records[0].Exists())
	assert.False(t, records[0].IsDirty())
}

func TestBuilderUnregisteredModel(t *testing.T) {
	db := newTestDB(newFakeAdapter())

	_, err := db.Model("nope").Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotRegistered)
}

func TestBuilderFirstNoRows(t *testing.T) {
	db := newTestDB(newFakeAdapter())

	_, err := db.Model("author").Where("name", "nobody").First(context.Background())
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestBuilderFindRequiresModel(t *testing.T) {
	db := newTestDB(newFakeAdapter())

	_, err := db.Table("authors").Find(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestBuilderBadOperator(t *testing.T) {
	db := newTestDB(newFakeAdapter())

	_, err := db.Model("author").Where("age", 42, 18).Get(context.Background())
	require.Error(t, err)
}

func TestBuilderReexecutes(t *testing.T) {
	f := newFakeAdapter()
	db := newTestDB(f)

	b := db.Model("author")
	_, err := b.Get(context.Background())
	require.NoError(t, err)
	_, err = b.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, f.queryCount())
}

func TestBuilderCount(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = func(_ string, _ []interface{}) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"aggregate": int64(3)}}, nil
	}
	db := newTestDB(f)

	n, err := db.Model("author").Where("active", true).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestBuilderPaginate(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = func(sql string, _ []interface{}) ([]map[string]interface{}, error) {
		if strings.Contains(sql, "COUNT(") {
			return []map[string]interface{}{{"aggregate": int64(12)}}, nil
		}
		return []map[string]interface{}{{"id": int64(6)}, {"id": int64(7)}}, nil
	}
	db := newTestDB(f)

	page, err := db.Model("author").OrderBy("id").Paginate(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Records, 2)

	windowed := f.queriesMatching("LIMIT 5")
	require.Len(t, windowed, 1)
	assert.Contains(t, windowed[0].SQL, "OFFSET 5")

	t.Run("non-positive page size is clamped", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = func(sql string, _ []interface{}) ([]map[string]interface{}, error) {
			if strings.Contains(sql, "COUNT(") {
				return []map[string]interface{}{{"aggregate": int64(12)}}, nil
			}
			return []map[string]interface{}{{"id": int64(1)}}, nil
		}
		db := newTestDB(f)

		page, err := db.Model("author").Paginate(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, page.PageSize)
		assert.Len(t, f.queriesMatching("LIMIT 1"), 1)
	})
}

func TestBuilderConstrain(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {
			{"id": int64(1), "name": "Ada"},
			{"id": int64(2), "name": "Grace"},
		},
	})
	db := newTestDB(f)
	ctx := context.Background()

	applied := 0
	b := db.Model("author").Constrain(func(b *Builder) {
		applied++
		b.Where("name", "Ada")
	})

	records, err := b.Get(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ada", records[0].GetString("name"))

	// Re-execution keeps the scoped structure but does not re-apply the
	// callback.
	records, err = b.Get(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, applied)

	scoped := f.queriesMatching(`"name" = ?`)
	assert.Len(t, scoped, 2)
}

func TestQueryCache(t *testing.T) {
	t.Run("repeat query served from cache", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = tableRows(map[string][]map[string]interface{}{
			"authors": {{"id": int64(1), "name": "Ada"}},
		})
		db := newTestDB(f, WithResultCache(cache.NewMemory()))

		ctx := context.Background()
		_, err := db.Model("author").Where("name", "Ada").Get(ctx)
		require.NoError(t, err)
		_, err = db.Model("author").Where("name", "Ada").Get(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, f.queryCount())
	})

	t.Run("write invalidates cached queries for the table", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = tableRows(map[string][]map[string]interface{}{
			"authors": {{"id": int64(1), "name": "Ada"}},
		})
		db := newTestDB(f, WithResultCache(cache.NewMemory()))
		ctx := context.Background()

		_, err := db.Model("author").Where("name", "Ada").Get(ctx)
		require.NoError(t, err)

		rec, err := db.NewRecord("author")
		require.NoError(t, err)
		rec.Set("name", "Grace")
		require.NoError(t, rec.Save(ctx))

		_, err = db.Model("author").Where("name", "Ada").Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, f.queryCount())
	})

	t.Run("cache bypassed inside a transaction", func(t *testing.T) {
		f := newFakeAdapter()
		db := newTestDB(f, WithResultCache(cache.NewMemory()))
		ctx := context.Background()

		err := db.Transaction(ctx, func(ctx context.Context) error {
			if _, err := db.Model("author").Get(ctx); err != nil {
				return err
			}
			_, err := db.Model("author").Get(ctx)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, f.queryCount())
	})

	t.Run("disabled cache keeps hitting the adapter", func(t *testing.T) {
		f := newFakeAdapter()
		db := newTestDB(f, WithResultCache(cache.NewMemory()), WithCacheDisabled())
		ctx := context.Background()

		_, err := db.Model("author").Get(ctx)
		require.NoError(t, err)
		_, err = db.Model("author").Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, f.queryCount())
	})
}

// recordingTracer captures spans for trace attribute assertions.
type recordingTracer struct {
	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, tracer.Span) {
	s := &recordingSpan{name: name}
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return ctx, s
}

type recordingSpan struct {
	name  string
	attrs []attribute.KeyValue
}

func (s *recordingSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.attrs = append(s.attrs, attrs...)
}

func (s *recordingSpan) RecordError(error)            {}
func (s *recordingSpan) SetStatus(codes.Code, string) {}
func (s *recordingSpan) End()                         {}

func (s *recordingSpan) boolAttr(key string) (value, ok bool) {
	for _, a := range s.attrs {
		if string(a.Key) == key {
			return a.Value.AsBool(), true
		}
	}
	return false, false
}

func TestCacheHitTraced(t *testing.T) {
	f := newFakeAdapter()
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1), "name": "Ada"}},
	})
	rec := &recordingTracer{}
	db := newTestDB(f, WithResultCache(cache.NewMemory()), WithTracer(rec))
	ctx := context.Background()

	_, err := db.Model("author").Where("name", "Ada").Get(ctx)
	require.NoError(t, err)
	_, err = db.Model("author").Where("name", "Ada").Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.queryCount())

	var hits, misses int
	for _, s := range rec.spans {
		hit, ok := s.boolAttr("db.cache_hit")
		if !ok {
			continue
		}
		if hit {
			hits++
		} else {
			misses++
		}
	}
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, hits)
}

func TestRowCache(t *testing.T) {
	authorRows := func(_ string, params []interface{}) ([]map[string]interface{}, error) {
		all := map[int64]map[string]interface{}{
			1: {"id": int64(1), "name": "Ada"},
			2: {"id": int64(2), "name": "Grace"},
			3: {"id": int64(3), "name": "Edsger"},
		}
		var out []map[string]interface{}
		for _, p := range params {
			if row, ok := all[toInt64(p)]; ok {
				out = append(out, row)
			}
		}
		return out, nil
	}

	t.Run("find served from row cache on repeat", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = authorRows
		db := newTestDB(f, WithResultCache(cache.NewMemory()))
		ctx := context.Background()

		rec, err := db.Model("author").Find(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Ada", rec.GetString("name"))

		_, err = db.Model("author").Find(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, f.queryCount())
	})

	t.Run("partial hit fetches only missing ids", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = authorRows
		db := newTestDB(f, WithResultCache(cache.NewMemory()))
		ctx := context.Background()

		_, err := db.Model("author").Find(ctx, 1)
		require.NoError(t, err)

		records, err := db.Model("author").WhereIn("id", 1, 2, 3).Get(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Ada", records[0].GetString("name"))
		assert.Equal(t, "Edsger", records[2].GetString("name"))

		require.Equal(t, 2, f.queryCount())
		batch := f.queries[1]
		assert.Equal(t, []interface{}{2, 3}, batch.Params)
	})

	t.Run("absent ids omitted without error", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = authorRows
		db := newTestDB(f, WithResultCache(cache.NewMemory()))

		records, err := db.Model("author").WhereIn("id", 1, 99).Get(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, int64(1), records[0].GetInt("id"))
	})

	t.Run("save invalidates the table's rows", func(t *testing.T) {
		f := newFakeAdapter()
		f.queryFn = authorRows
		db := newTestDB(f, WithResultCache(cache.NewMemory()))
		ctx := context.Background()

		rec, err := db.Model("author").Find(ctx, 1)
		require.NoError(t, err)

		rec.Set("name", "Ada L.")
		require.NoError(t, rec.Save(ctx))

		_, err = db.Model("author").Find(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, f.queryCount())
	})
}

func TestBackendErrorPropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	f := newFakeAdapter()
	f.queryFn = func(_ string, _ []interface{}) ([]map[string]interface{}, error) {
		return nil, boom
	}
	db := newTestDB(f, WithResultCache(cache.NewMemory()))

	_, err := db.Model("author").Get(context.Background())
	assert.ErrorIs(t, err, boom)
	// Failed queries must not poison the cache.
	f.queryFn = tableRows(map[string][]map[string]interface{}{
		"authors": {{"id": int64(1)}},
	})
	records, err := db.Model("author").Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
