package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenSQLite(dir)
	require.NoError(t, err)
	v1, err := s1.AppliedMigrations()
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(dir)
	require.NoError(t, err)
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	require.NoError(t, err)

	assert.NotEmpty(t, v1)
	assert.Equal(t, v1, v2)
}

func TestSQLite_UserRoundTrip(t *testing.T) {
	s := openTestSQLite(t)

	_, err := s.GetUser(ctx, "rose")
	assert.ErrorIs(t, err, ErrNotFound)

	first := NewEntry(KindQuestion, "Prune when?", "Late winter ✂️")
	second := NewEntry(KindFollowup, "How much?", "A third")
	second.ParentID = first.ID

	require.NoError(t, s.PutUser(ctx, User{
		Username: "rose",
		Password: "hash",
		Fullname: "Rose Bush",
		History:  []HistoryEntry{first, second},
	}))

	u, err := s.GetUser(ctx, "rose")
	require.NoError(t, err)
	assert.Equal(t, "rose", u.Username)
	assert.Equal(t, "Rose Bush", u.Fullname)
	require.Len(t, u.History, 2)
	assert.Equal(t, first.ID, u.History[0].ID)
	assert.Equal(t, second.ID, u.History[1].ID)
	assert.Equal(t, first.ID, u.History[1].ParentID)
	assert.WithinDuration(t, first.CreatedAt, u.History[0].CreatedAt, time.Millisecond)
}

func TestSQLite_PutHistoryReplacesInOrder(t *testing.T) {
	s := openTestSQLite(t)
	require.NoError(t, s.PutUser(ctx, User{Username: "rose", Password: "x"}))

	a := NewEntry(KindQuestion, "a", "1")
	b := NewEntry(KindQuestion, "b", "2")
	c := NewEntry(KindMoreInfo, "c", "3")
	require.NoError(t, s.PutHistory(ctx, "rose", []HistoryEntry{a, b, c}))
	require.NoError(t, s.PutHistory(ctx, "rose", []HistoryEntry{c, a}))

	u, err := s.GetUser(ctx, "rose")
	require.NoError(t, err)
	require.Len(t, u.History, 2)
	assert.Equal(t, "c", u.History[0].Question)
	assert.Equal(t, KindMoreInfo, u.History[0].Kind)
	assert.Equal(t, "a", u.History[1].Question)

	require.NoError(t, s.PutHistory(ctx, "rose", nil))
	u, err = s.GetUser(ctx, "rose")
	require.NoError(t, err)
	assert.Empty(t, u.History)
}

func TestSQLite_PutHistoryUnknownUser(t *testing.T) {
	s := openTestSQLite(t)

	err := s.PutHistory(ctx, "ghost", []HistoryEntry{NewEntry(KindQuestion, "q", "a")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_PutUserUpdatesFields(t *testing.T) {
	s := openTestSQLite(t)
	require.NoError(t, s.PutUser(ctx, User{Username: "rose", Password: "old", Fullname: "R"}))
	require.NoError(t, s.PutUser(ctx, User{Username: "rose", Password: "new", Fullname: "Rose"}))

	u, err := s.GetUser(ctx, "rose")
	require.NoError(t, err)
	assert.Equal(t, "new", u.Password)
	assert.Equal(t, "Rose", u.Fullname)
}

func TestMemoryStore_CopiesHistory(t *testing.T) {
	m := NewMemoryStore()
	h := []HistoryEntry{NewEntry(KindQuestion, "q", "a")}
	require.NoError(t, m.PutUser(ctx, User{Username: "moss", History: h}))

	h[0].Question = "mutated"
	u, err := m.GetUser(ctx, "moss")
	require.NoError(t, err)
	assert.Equal(t, "q", u.History[0].Question)

	u.History[0].Question = "mutated again"
	u2, err := m.GetUser(ctx, "moss")
	require.NoError(t, err)
	assert.Equal(t, "q", u2.History[0].Question)

	assert.ErrorIs(t, m.PutHistory(ctx, "ghost", nil), ErrNotFound)
}

func TestHistoryEntryText(t *testing.T) {
	e := HistoryEntry{Kind: KindMoreInfo, Question: "Soil?", Answer: "Loamy 🌱"}
	assert.Equal(t, "📌 More Info Q: Soil?\n\n📝 A: Loamy 🌱", e.Text())

	e.Kind = "unknown"
	assert.Equal(t, "🌱 Q: Soil?\n\n📝 A: Loamy 🌱", e.Text())

	assert.True(t, KindFollowup.Valid())
	assert.False(t, Kind("nope").Valid())
}
