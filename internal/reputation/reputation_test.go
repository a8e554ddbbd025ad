package reputation

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsCrafted/blooket-hacks/internal/resilience"
)

func TestIPInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		switch r.URL.Path {
		case "/198.51.100.1":
			_, _ = w.Write([]byte(`{"ip":"198.51.100.1","privacy":{"vpn":true,"proxy":false,"hosting":false}}`))
		case "/198.51.100.2":
			_, _ = w.Write([]byte(`{"ip":"198.51.100.2","privacy":{"vpn":false,"proxy":false,"hosting":true}}`))
		case "/198.51.100.3":
			_, _ = w.Write([]byte(`{"ip":"198.51.100.3","privacy":{"vpn":false,"proxy":false,"hosting":false}}`))
		case "/198.51.100.4":
			_, _ = w.Write([]byte(`{"ip":"198.51.100.4"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	c := NewIPInfo("tok")
	c.BaseURL = srv.URL
	ctx := context.Background()

	tests := []struct {
		addr    string
		want    bool
		wantErr bool
	}{
		{addr: "198.51.100.1", want: true},
		{addr: "198.51.100.2", want: true},
		{addr: "198.51.100.3", want: false},
		{addr: "198.51.100.4", want: false},
		{addr: "198.51.100.5", wantErr: true},
	}
	for _, tt := range tests {
		got, err := c.Check(ctx, tt.addr)
		if tt.wantErr {
			assert.Error(t, err, tt.addr)
			continue
		}
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.want, got, tt.addr)
	}
}

func startDNS(t *testing.T, listed map[string]bool) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, q *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(q)
		name := q.Question[0].Name
		if listed[name] {
			rr, _ := dns.NewRR(name + " 60 IN A 127.0.0.2")
			m.Answer = append(m.Answer, rr)
		} else {
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSBLQueryName(t *testing.T) {
	c := NewDNSBL("zen.example.org", "")

	name, ok := c.QueryName("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, "7.113.0.203.zen.example.org.", name)

	name, ok = c.QueryName("::ffff:203.0.113.8")
	require.True(t, ok)
	assert.Equal(t, "8.113.0.203.zen.example.org.", name)

	_, ok = c.QueryName("2001:db8::1")
	assert.False(t, ok)
	_, ok = c.QueryName("unknown")
	assert.False(t, ok)
}

func TestDNSBLCheck(t *testing.T) {
	addr := startDNS(t, map[string]bool{"7.113.0.203.bl.test.": true})
	c := NewDNSBL("bl.test", addr)
	ctx := context.Background()

	listed, err := c.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, listed)

	listed, err = c.Check(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, listed)

	listed, err = c.Check(ctx, "2001:db8::1")
	require.NoError(t, err)
	assert.False(t, listed, "IPv6 is not covered")
}

func TestGuardedDisabled(t *testing.T) {
	calls := 0
	g := NewGuarded(CheckerFunc(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}), time.Second, false)

	assert.False(t, g.Flagged(context.Background(), "198.51.100.1"))
	assert.Equal(t, 0, calls)

	g.SetEnabled(true)
	assert.True(t, g.Enabled())
	assert.True(t, g.Flagged(context.Background(), "198.51.100.1"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), g.Stats()["flagged"])
}

func TestGuardedFailsOpen(t *testing.T) {
	g := NewGuarded(CheckerFunc(func(context.Context, string) (bool, error) {
		return true, errors.New("upstream down")
	}), time.Second, true)

	assert.False(t, g.Flagged(context.Background(), "198.51.100.1"))
	assert.Equal(t, int64(1), g.Stats()["failed"])
}

func TestGuardedTimeout(t *testing.T) {
	g := NewGuarded(CheckerFunc(func(ctx context.Context, _ string) (bool, error) {
		<-ctx.Done()
		return true, ctx.Err()
	}), 20*time.Millisecond, true)

	start := time.Now()
	assert.False(t, g.Flagged(context.Background(), "198.51.100.1"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardedBreakerOpens(t *testing.T) {
	calls := 0
	g := NewGuarded(CheckerFunc(func(context.Context, string) (bool, error) {
		calls++
		return false, errors.New("upstream down")
	}), time.Second, true)

	for i := 0; i < 10; i++ {
		g.Flagged(context.Background(), "198.51.100.1")
	}
	assert.Equal(t, resilience.ReputationThreshold, calls, "open breaker should short-circuit lookups")
	assert.Equal(t, int64(10-calls), g.Stats()["short_circuited"])
	assert.Equal(t, int64(10), g.Stats()["failed"])
}
