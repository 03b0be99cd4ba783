package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

type recordingDownstream struct {
	mu  sync.Mutex
	got [][]byte
	ch  chan struct{}
}

func newRecordingDownstream() *recordingDownstream {
	return &recordingDownstream{ch: make(chan struct{}, 16)}
}

func (r *recordingDownstream) WriteToClient(payload []byte, client endpoint.Address) error {
	r.mu.Lock()
	r.got = append(r.got, append([]byte(nil), payload...))
	r.mu.Unlock()
	r.ch <- struct{}{}
	return nil
}

type passThroughChains struct{}

func (passThroughChains) Current() *filters.Chain { return filters.NewChain(1, nil) }

func echoServer(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteToUDP(buf[:n], addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr)
}

func newTestMap(t *testing.T, opts Options) (*Map, *recordingDownstream) {
	t.Helper()
	down := newRecordingDownstream()
	opts.Downstream = down
	if opts.Chains == nil {
		opts.Chains = passThroughChains{}
	}
	m := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m, down
}

func mustAddress(t *testing.T, s string) endpoint.Address {
	t.Helper()
	a, err := endpoint.NewAddress(s)
	require.NoError(t, err)
	return a
}

func TestGetOrCreateReturnsSameSessionForSameKey(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	echo := echoServer(t)

	client := mustAddress(t, "127.0.0.1:9000")
	ep := mustAddress(t, echo.String())

	s1, err := m.GetOrCreate(client, ep)
	require.NoError(t, err)
	s2, err := m.GetOrCreate(client, ep)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.Len())
}

func TestSessionForwardsEndpointRepliesToDownstream(t *testing.T) {
	m, down := newTestMap(t, Options{})
	echo := echoServer(t)

	client := mustAddress(t, "127.0.0.1:9001")
	ep := mustAddress(t, echo.String())

	s, err := m.GetOrCreate(client, ep)
	require.NoError(t, err)
	require.NoError(t, s.Send([]byte("ping")))

	select {
	case <-down.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed reply")
	}

	down.mu.Lock()
	defer down.mu.Unlock()
	require.Len(t, down.got, 1)
	assert.Equal(t, []byte("ping"), down.got[0])
}

func TestGetOrCreateRejectsBeyondMaxSessions(t *testing.T) {
	m, _ := newTestMap(t, Options{MaxSessions: 1})
	echo := echoServer(t)
	ep := mustAddress(t, echo.String())

	_, err := m.GetOrCreate(mustAddress(t, "127.0.0.1:9100"), ep)
	require.NoError(t, err)

	_, err = m.GetOrCreate(mustAddress(t, "127.0.0.1:9101"), ep)
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Expired, se.Kind)
}

func TestReapRemovesIdleSessions(t *testing.T) {
	m, _ := newTestMap(t, Options{TTL: 10 * time.Millisecond, ReapInterval: 5 * time.Millisecond})
	echo := echoServer(t)
	ep := mustAddress(t, echo.String())

	_, err := m.GetOrCreate(mustAddress(t, "127.0.0.1:9200"), ep)
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	require.Eventually(t, func() bool {
		return m.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownDrainsAllSessions(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	echo := echoServer(t)
	ep := mustAddress(t, echo.String())

	_, err := m.GetOrCreate(mustAddress(t, "127.0.0.1:9300"), ep)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)

	assert.Equal(t, 0, m.Len())
}
