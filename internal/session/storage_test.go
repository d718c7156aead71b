package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"partner-portal/internal/rbac"
	"partner-portal/pkg/utils"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, st Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := st.Load(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, st.Save(ctx, "a", Session{Token: "t"}), ErrIncompleteSession)

	require.NoError(t, st.Save(ctx, "a", Session{Token: "t1", Role: rbac.RoleAgent}))
	require.NoError(t, st.Save(ctx, "b", Session{Token: "t2", Role: rbac.RoleAdmin}))
	require.NoError(t, st.Save(ctx, "a", Session{Token: "t3", Role: rbac.RoleAdmin}))

	got, err := st.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "t3", Role: rbac.RoleAdmin}, got)

	require.NoError(t, st.Delete(ctx, "a"))
	require.NoError(t, st.Delete(ctx, "a"))
	_, err = st.Load(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	got, err = st.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)
	require.NoError(t, st.Delete(ctx, "b"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	st := NewFileStorage(path)
	exerciseStorage(t, st)

	require.NoError(t, st.Save(context.Background(), "cli", Session{Token: "t", Role: rbac.RoleAgent}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := NewFileStorage(path)
	got, err := reopened.Load(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Token)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileStorage(path).Load(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exerciseStorage(t, NewRedisStorage(rdb, time.Hour))
}

func TestRedisStorage_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	st := NewRedisStorage(rdb, time.Minute)
	require.NoError(t, st.Save(ctx, "a", Session{Token: "t", Role: rbac.RoleAgent}))
	assert.Equal(t, time.Minute, mr.TTL(redisKey("a")))

	mr.FastForward(2 * time.Minute)
	_, err := st.Load(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage_HalfWrittenHashIsEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mr.HSet(redisKey("a"), "token", "orphan")
	_, err := NewRedisStorage(rdb, 0).Load(context.Background(), "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("PORTAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PORTAL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := utils.OpenPostgres(ctx, "pgx", dsn, utils.PostgresPoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := NewPostgresStorage(db, time.Hour)
	require.NoError(t, st.Migrate(ctx))
	_, _ = db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE scope IN ('a', 'b', 'stale')`)
	exerciseStorage(t, st)

	t.Run("rows expire after the ttl", func(t *testing.T) {
		require.NoError(t, st.Save(ctx, "stale", Session{Token: "t", Role: rbac.RoleAgent}))
		_, err := db.ExecContext(ctx, `UPDATE portal_sessions SET updated_at = now() - interval '2 hours' WHERE scope = 'stale'`)
		require.NoError(t, err)

		_, err = st.Load(ctx, "stale")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = NewPostgresStorage(db, 0).Load(ctx, "stale")
		assert.NoError(t, err, "a zero ttl keeps rows")

		n, err := st.Sweep(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
		_, err = NewPostgresStorage(db, 0).Load(ctx, "stale")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
