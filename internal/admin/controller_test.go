package admin

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/audit"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/cooldown"
	"github.com/ItsCrafted/blooket-hacks/internal/reputation"
	"github.com/ItsCrafted/blooket-hacks/internal/store"
)

func newTestController(t *testing.T) (*Controller, *reputation.Guarded) {
	t.Helper()
	dir := t.TempDir()
	bans := store.New("bans", store.JSONFile{Path: filepath.Join(dir, "bans.json")}, store.IdentityNormalizer)
	words := store.New("words", store.JSONFile{Path: filepath.Join(dir, "words.json")}, store.WordNormalizer)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = bans.Close(ctx)
		_ = words.Close(ctx)
	})

	rep := reputation.NewGuarded(reputation.CheckerFunc(func(context.Context, string) (bool, error) {
		return false, nil
	}), time.Second, true)

	ctrl := NewController(Deps{
		Bans:       bans,
		Words:      words,
		Audit:      audit.New(100),
		Reputation: rep,
		Stats:      func() map[string]any { return map[string]any{"online": 3} },
	})
	return ctrl, rep
}

func TestControllerBanUnban(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := WithSubject(context.Background(), "alice")

	changed, err := ctrl.Ban(ctx, "42")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"0000000000000042"}, ctrl.Bans())

	changed, err = ctrl.Ban(ctx, "0000000000000042")
	require.NoError(t, err)
	assert.False(t, changed, "same identity in canonical form")

	changed, err = ctrl.Unban(ctx, "42")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, ctrl.Bans())

	entries := ctrl.Audit(10)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionUnban, entries[0].Action)
	assert.Contains(t, entries[0].Detail, "alice")
}

func TestControllerUnbanClearsCooldown(t *testing.T) {
	dir := t.TempDir()
	bans := store.New("bans", store.JSONFile{Path: filepath.Join(dir, "bans.json")}, store.IdentityNormalizer)
	words := store.New("words", store.JSONFile{Path: filepath.Join(dir, "words.json")}, store.WordNormalizer)
	t.Cleanup(func() {
		_ = bans.Close(context.Background())
		_ = words.Close(context.Background())
	})

	now := time.Unix(1_700_000_000, 0)
	limiter := cooldown.New(time.Minute, func() time.Time { return now })
	ctrl := NewController(Deps{
		Bans:     bans,
		Words:    words,
		Cooldown: limiter,
	})
	ctx := context.Background()
	const id = "0000000000000042"

	ok, _ := limiter.Allow(id)
	require.True(t, ok)
	ok, _ = limiter.Allow("0000000000000007")
	require.True(t, ok)

	_, err := ctrl.Unban(ctx, "42")
	require.NoError(t, err)
	ok, _ = limiter.Allow(id)
	assert.False(t, ok, "unban of an identity that was not banned changes nothing")

	_, err = ctrl.Ban(ctx, "42")
	require.NoError(t, err)
	changed, err := ctrl.Unban(ctx, "42")
	require.NoError(t, err)
	require.True(t, changed)

	ok, _ = limiter.Allow(id)
	assert.True(t, ok, "cooldown lifted with the ban")
	ok, _ = limiter.Allow("0000000000000007")
	assert.False(t, ok, "other identities keep their cooldown")
}

func TestControllerRejectsBadInput(t *testing.T) {
	ctrl, _ := newTestController(t)

	_, err := ctrl.Ban(context.Background(), "not-an-id")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))

	_, err = ctrl.AddWord(context.Background(), "   ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
}

func TestControllerWords(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	_, err := ctrl.AddWord(ctx, "Foo")
	require.NoError(t, err)
	_, err = ctrl.AddWord(ctx, "bar")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, ctrl.Words())

	changed, err := ctrl.RemoveWord(ctx, "FOO")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"bar"}, ctrl.Words())
}

func TestControllerReputationAndStats(t *testing.T) {
	ctrl, rep := newTestController(t)

	require.NoError(t, ctrl.SetReputationCheck(context.Background(), false))
	assert.False(t, rep.Enabled())

	_, err := ctrl.AddWord(context.Background(), "foo")
	require.NoError(t, err)

	st := ctrl.Stats()
	assert.Equal(t, 3, st["online"])
	assert.Equal(t, 1, st["words"])
	assert.Equal(t, 0, st["bans"])
	assert.Equal(t, false, st["reputation"].(map[string]any)["enabled"])
	assert.Equal(t, 1, st["actions"].(map[string]any)[string(audit.ActionVPNCheck)])
}

func TestControllerWithoutReputation(t *testing.T) {
	ctrl := NewController(Deps{
		Bans:  store.New("bans", store.JSONFile{Path: filepath.Join(t.TempDir(), "b.json")}, store.IdentityNormalizer),
		Words: store.New("words", store.JSONFile{Path: filepath.Join(t.TempDir(), "w.json")}, store.WordNormalizer),
	})
	err := ctrl.SetReputationCheck(context.Background(), true)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))
}

func TestSubjectFromContext(t *testing.T) {
	assert.Equal(t, "unknown", SubjectFromContext(context.Background()))
	assert.Equal(t, "bob", SubjectFromContext(WithSubject(context.Background(), "bob")))
}
