package relay

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsCrafted/blooket-hacks/internal/identity"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/audit"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/cooldown"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/filter"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/hub"
	"github.com/ItsCrafted/blooket-hacks/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	frames []Outbound
}

func (r *recorder) Send(v any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, v.(Outbound))
	return true, nil
}

func (r *recorder) Broadcast(v any) (int, error) {
	_, err := r.Send(v)
	return 1, err
}

func (r *recorder) all() []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outbound(nil), r.frames...)
}

type fixture struct {
	pipeline  *Pipeline
	bans      *store.Set
	words     *store.Set
	clock     *fakeClock
	reply     *recorder
	broadcast *recorder
	audit     *audit.Log
}

func newFixture(t *testing.T, words ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	f := &fixture{
		bans:      store.New("bans", store.JSONFile{Path: filepath.Join(dir, "bans.txt")}, store.IdentityNormalizer),
		words:     store.New("words", store.JSONFile{Path: filepath.Join(dir, "words.txt")}, store.WordNormalizer),
		clock:     &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		reply:     &recorder{},
		broadcast: &recorder{},
		audit:     audit.New(100),
	}
	t.Cleanup(func() {
		_ = f.bans.Close(ctx)
		_ = f.words.Close(ctx)
	})
	for _, w := range words {
		_, err := f.words.Add(w)
		require.NoError(t, err)
	}

	flt := filter.New()
	f.words.OnChange(flt.SetTerms)

	f.pipeline = NewPipeline(Deps{
		Filter:  flt,
		Bans:    f.bans,
		Limiter: cooldown.New(cooldown.DefaultInterval, f.clock.Now),
		Hub:     f.broadcast,
		Audit:   f.audit,
	})
	return f
}

func frame(name, content, typ string) []byte {
	b, _ := json.Marshal(map[string]string{"name": name, "content": content, "type": typ})
	return b
}

const alice = "0000000000000001"

func (f *fixture) handle(raw []byte) Outcome {
	return f.pipeline.Handle(context.Background(), alice, f.reply, raw)
}

func TestAcceptedMessageBroadcast(t *testing.T) {
	f := newFixture(t)

	out := f.handle(frame("alice", "hello", "msg"))
	assert.Equal(t, Accepted, out)
	assert.Empty(t, f.reply.all())
	require.Len(t, f.broadcast.all(), 1)
	assert.Equal(t, Outbound{Type: "msg", Src: "local", Content: "hello", Name: "alice", ID: alice}, f.broadcast.all()[0])
}

func TestFilteredWordBansSender(t *testing.T) {
	f := newFixture(t, "badword")

	out := f.handle(frame("alice", "this has a badword in it", "msg"))
	assert.Equal(t, FilterBanned, out)
	assert.True(t, f.bans.Contains(alice))
	assert.Equal(t, []Outbound{FilterBanNotice}, f.reply.all())
	assert.Empty(t, f.broadcast.all())
	assert.Equal(t, 1, f.audit.Counts()[audit.ActionFilterBan])
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, "badword")
	assert.Equal(t, FilterBanned, f.handle(frame("alice", "BadWord!", "msg")))
}

func TestFilterDoesNotBanForName(t *testing.T) {
	f := newFixture(t, "heck")

	out := f.handle(frame("heckler", "hello", "msg"))
	assert.Equal(t, Accepted, out)
	assert.False(t, f.bans.Contains(alice))
	require.Len(t, f.broadcast.all(), 1)
	assert.Equal(t, "####ler", f.broadcast.all()[0].Name)
}

func TestFilterUpdatesFollowWordList(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Accepted, f.handle(frame("a", "fresh term", "msg")))

	_, err := f.words.Add("fresh")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)
	assert.Equal(t, FilterBanned, f.handle(frame("a", "fresh term", "msg")))
}

func TestBannedSenderRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.bans.Add(alice)
	require.NoError(t, err)

	out := f.handle(frame("alice", "hello", "msg"))
	assert.Equal(t, Banned, out)
	assert.Equal(t, []Outbound{BanNotice}, f.reply.all())
	assert.Empty(t, f.broadcast.all())
}

func TestFilterRunsBeforeBanCheck(t *testing.T) {
	f := newFixture(t, "badword")
	_, _ = f.bans.Add(alice)

	assert.Equal(t, FilterBanned, f.handle(frame("alice", "badword", "msg")))
	assert.Equal(t, []Outbound{FilterBanNotice}, f.reply.all())
}

func TestBanCheckRunsBeforeCooldown(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Accepted, f.handle(frame("alice", "one", "msg")))

	_, _ = f.bans.Add(alice)
	assert.Equal(t, Banned, f.handle(frame("alice", "two", "msg")))
}

func TestCooldown(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, Accepted, f.handle(frame("a", "t0", "msg")))

	f.clock.Advance(1000 * time.Millisecond)
	assert.Equal(t, RateLimited, f.handle(frame("a", "t1000", "msg")))
	assert.Equal(t, []Outbound{RateLimitNotice(1)}, f.reply.all())
	assert.Equal(t, "Wait 1s before sending another message", f.reply.all()[0].Content)

	f.clock.Advance(600 * time.Millisecond)
	assert.Equal(t, Accepted, f.handle(frame("a", "t1600", "msg")))
	assert.Len(t, f.broadcast.all(), 2)
}

func TestCooldownNoticeRoundsUp(t *testing.T) {
	f := newFixture(t)
	f.handle(frame("a", "first", "msg"))
	f.clock.Advance(100 * time.Millisecond)

	f.handle(frame("a", "second", "msg"))
	assert.Equal(t, "Wait 2s before sending another message", f.reply.all()[0].Content)
}

func TestValidationDropsSilently(t *testing.T) {
	tests := map[string][]byte{
		"newline in name":     frame("hi\n there", "x", "msg"),
		"carriage return":     frame("a", "x\ry", "msg"),
		"reserved marker":     frame("a", "[+b]", "msg"),
		"name too long":       frame(strings.Repeat("n", 51), "x", "msg"),
		"content too long":    frame("a", strings.Repeat("c", 5001), "msg"),
		"marker in long name": frame("[+"+strings.Repeat("n", 60), "x", "msg"),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, Dropped, f.handle(raw))
			assert.Empty(t, f.reply.all(), "no notice")
			assert.Empty(t, f.broadcast.all(), "no broadcast")
		})
	}
}

func TestFoldedFieldsAreValidated(t *testing.T) {
	tests := map[string][]byte{
		"fullwidth marker in name":    frame("\uff3b\uff0bSystem", "hello", "msg"),
		"fullwidth marker in content": frame("a", "\uff3b\uff0bsystem] you are banned", "msg"),
		"marker split by accent":      frame("a", "[\u0301+b]", "msg"),
		"name grows past limit":       frame(strings.Repeat("\u247d", 50), "x", "msg"),
		"content grows past limit":    frame("a", strings.Repeat("\u247d", 2000), "msg"),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, Dropped, f.handle(raw))
			assert.Empty(t, f.reply.all(), "no notice")
			assert.Empty(t, f.broadcast.all(), "no broadcast")
		})
	}
}

func TestBroadcastFieldsKeepMessageLimits(t *testing.T) {
	tests := []struct {
		name        string
		sender      string
		content     string
		wantName    string
		wantContent string
	}{
		{"ligatures", "\ufb01sh", "\ufb01ne \ufb02ow", "fish", "fine flow"},
		{"circled letters", "\u24d0", "\u24d7\u24d4\u24db\u24db\u24de", "a", "hello"},
		{"fullwidth", "\uff21\uff22", "\uff21\uff22\uff23 1\uff0b1", "AB", "ABC 1+1"},
		{"parenthesized near limit", strings.Repeat("\u247d", 12), "\u2474", strings.Repeat("(10)", 12), "(1)"},
		{"emoji removed", "bob", "hi \U0001F600", "bob", "hi "},
		{"filtered term censored", "heck\u00e9", "h\u00ebck", "####e", "****"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "heck")
			require.Equal(t, Accepted, f.handle(frame(tt.sender, tt.content, "msg")))

			out := f.broadcast.all()
			require.Len(t, out, 1)
			msg := out[0]
			assert.Equal(t, tt.wantName, msg.Name)
			assert.Equal(t, tt.wantContent, msg.Content)
			for _, field := range []string{msg.Name, msg.Content} {
				assert.NotContains(t, field, "[+")
				assert.False(t, strings.ContainsAny(field, "\r\n"), "line break in %q", field)
			}
			assert.LessOrEqual(t, utf8.RuneCountInString(msg.Name), 50)
			assert.LessOrEqual(t, utf8.RuneCountInString(msg.Content), 5000)
		})
	}
}

func TestValidationRunsBeforeFilter(t *testing.T) {
	f := newFixture(t, "badword")

	assert.Equal(t, Dropped, f.handle(frame("a", "badword\n", "msg")))
	assert.False(t, f.bans.Contains(alice), "dropped frames never reach the filter")
}

func TestValidationDoesNotConsumeCooldown(t *testing.T) {
	f := newFixture(t)
	f.handle(frame("a\n", "x", "msg"))
	assert.Equal(t, Accepted, f.handle(frame("a", "x", "msg")))
}

func TestMalformedFrames(t *testing.T) {
	tests := map[string]string{
		"not json":        `hello`,
		"array":           `["a"]`,
		"missing name":    `{"content":"x","type":"msg"}`,
		"missing content": `{"name":"x","type":"msg"}`,
		"non-string name": `{"name":5,"content":"x","type":"msg"}`,
		"truncated":       `{"name":"a","content":"x"`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, Malformed, f.handle([]byte(raw)))
			assert.Equal(t, []Outbound{ParseErrorNotice}, f.reply.all())
			assert.Empty(t, f.broadcast.all())
		})
	}
}

func TestNonMessageTypeConsumesCooldown(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, Ignored, f.handle(frame("a", "typing", "typing")))
	assert.Empty(t, f.broadcast.all())

	f.clock.Advance(1600 * time.Millisecond)
	assert.Equal(t, Ignored, f.handle([]byte(`{"name":"a","content":"x","type":7}`)), "type is read leniently")

	f.clock.Advance(1600 * time.Millisecond)
	assert.Equal(t, Ignored, f.handle([]byte(`{"name":"a","content":"x"}`)))

	f.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, RateLimited, f.handle(frame("a", "now a message", "msg")))
	assert.Empty(t, f.broadcast.all())
}

func TestCensorsAccentedTerms(t *testing.T) {
	f := newFixture(t, "heck")

	assert.Equal(t, Accepted, f.handle(frame("a", "what the hëck", "msg")))
	require.Len(t, f.broadcast.all(), 1)
	assert.Equal(t, "what the ****", f.broadcast.all()[0].Content)
}

func TestCounts(t *testing.T) {
	f := newFixture(t)
	f.handle(frame("a", "x", "msg"))
	f.handle([]byte(`nope`))

	c := f.pipeline.Counts()
	assert.Equal(t, int64(1), c["accepted"])
	assert.Equal(t, int64(1), c["malformed"])
	assert.Equal(t, int64(0), c["banned"])
}

func TestFloodIsCountedWithoutNotice(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Flooded, f.pipeline.Flood(context.Background(), alice))

	assert.Equal(t, int64(1), f.pipeline.Counts()["flooded"])
	assert.Empty(t, f.reply.all())
	assert.Empty(t, f.broadcast.all())
}

func TestBroadcastToAllConnections(t *testing.T) {
	f := newFixture(t)
	h := hub.New("chat")
	f.pipeline.hub = h

	d := identity.NewDeriver([]byte("k1"))
	clients := make([]*hub.Client, 3)
	trs := make([]*frameSink, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := range clients {
		trs[i] = &frameSink{}
		clients[i] = hub.NewClient(d.Derive("198.51.100."+string(rune('1'+i))).String(), "", trs[i])
		h.Register(clients[i])
		go clients[i].Run(ctx)
	}

	out := f.pipeline.Handle(ctx, clients[0].Identity, clients[0], frame("c1", "hello all", "msg"))
	require.Equal(t, Accepted, out)

	for i, tr := range trs {
		require.Eventually(t, func() bool { return tr.len() == 1 }, time.Second, time.Millisecond, "client %d", i)
		var got Outbound
		require.NoError(t, json.Unmarshal(tr.first(), &got))
		assert.Equal(t, "msg", got.Type)
		assert.Equal(t, clients[0].Identity, got.ID)
	}
	time.Sleep(20 * time.Millisecond)
	for _, tr := range trs {
		assert.Equal(t, 1, tr.len(), "exactly one frame each")
	}
}

type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *frameSink) Write(_ context.Context, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, b)
	return nil
}

func (s *frameSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *frameSink) first() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[0]
}
