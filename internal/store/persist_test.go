package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filtered_words.txt")
	p := JSONFile{Path: path}
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, []string{"foo", "bar"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["foo","bar"]`, string(data))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, got)
}

func TestJSONFileEmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.txt")
	require.NoError(t, JSONFile{Path: path}.Save(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestJSONFileAcceptsNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.txt")
	require.NoError(t, os.WriteFile(path, []byte(`[123, "0000000000000456"]`), 0o644))

	got, err := JSONFile{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"123", "0000000000000456"}, got)
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	got, err := JSONFile{Path: filepath.Join(t.TempDir(), "missing.txt")}.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONFileLoadErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not":"an array"}`), 0o644))
	_, err := JSONFile{Path: bad}.Load(ctx)
	assert.Error(t, err)

	mixed := filepath.Join(dir, "mixed.txt")
	require.NoError(t, os.WriteFile(mixed, []byte(`["ok", {"x":1}]`), 0o644))
	_, err = JSONFile{Path: mixed}.Load(ctx)
	assert.Error(t, err)
}

func TestSetOverJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.txt")
	ctx := context.Background()

	s := New("bans", JSONFile{Path: path}, IdentityNormalizer)
	require.NoError(t, s.Load(ctx), "first boot has no file yet")
	assert.Zero(t, s.Len())
	_, err := s.Add("99")
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	reloaded := New("bans", JSONFile{Path: path}, IdentityNormalizer)
	defer reloaded.Close(ctx)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.Contains("99"))
}

func TestSQLiteLists(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	words := db.List("words")
	bans := db.List("bans")

	require.NoError(t, words.Save(ctx, []string{"zeta", "alpha"}))
	require.NoError(t, bans.Save(ctx, []string{"0000000000000001"}))

	got, err := words.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, got, "insertion order is preserved")

	require.NoError(t, words.Save(ctx, []string{"alpha"}))
	got, err = words.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, got)

	got, err = bans.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000000000001"}, got, "lists are independent")
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}
