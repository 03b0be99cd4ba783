/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
)

// DefaultTTL is the idle duration after which an unused session is
// reaped.
const DefaultTTL = 60 * time.Second

// DefaultReapInterval is how often the background reaper scans for
// idle sessions.
const DefaultReapInterval = 1 * time.Second

// DefaultMaxSessions bounds the number of concurrently open sessions.
const DefaultMaxSessions = 131072

// DefaultShutdownGrace bounds how long Shutdown waits for session
// readers to exit on their own before force-closing their sockets.
const DefaultShutdownGrace = 5 * time.Second

// Options configures a Map.
type Options struct {
	TTL           time.Duration
	ReapInterval  time.Duration
	MaxSessions   int
	ShutdownGrace time.Duration
	Downstream    DownstreamSender
	Chains        ChainProvider
	Log           logr.Logger
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = DefaultReapInterval
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
}

// Map is the SessionMap: a table from (client, endpoint) to an open
// upstream socket and its reader task. Reads (the forward hot path)
// take the read side of the lock; creation and removal take the
// write side. Per-session state is self-contained and requires no
// further locking once obtained.
type Map struct {
	opts Options

	mu       sync.RWMutex
	sessions map[Key]*Session

	reapStop chan struct{}
	reapDone chan struct{}
}

// New constructs a SessionMap and starts its background reaper. Call
// Shutdown to stop the reaper and drain all sessions.
func New(opts Options) *Map {
	opts.setDefaults()
	m := &Map{
		opts:     opts,
		sessions: make(map[Key]*Session),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	go m.reap()
	return m
}

// GetOrCreate returns the session for (client, endpoint), creating
// and spawning its reader if one does not already exist. It returns a
// Expired-kind Error if the table is at capacity and no session for
// this key exists yet.
func (m *Map) GetOrCreate(client, ep endpoint.Address) (*Session, error) {
	key := Key{Client: client, Endpoint: ep}

	m.mu.RLock()
	if s, ok := m.sessions[key]; ok {
		m.mu.RUnlock()
		s.Touch()
		return s, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		s.Touch()
		return s, nil
	}

	if len(m.sessions) >= m.opts.MaxSessions {
		SessionLimitExceeded.Inc()
		return nil, &Error{Kind: Expired, Key: key, Err: errSessionLimitExceeded}
	}

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(ep.AddrPort))
	if err != nil {
		return nil, &Error{Kind: Create, Key: key, Err: err}
	}

	s := newSession(key, conn, m.opts.Downstream, m.opts.Chains, m.opts.Log)
	m.sessions[key] = s
	CreatedTotal.Inc()
	ActiveSessions.Set(float64(len(m.sessions)))
	go s.run()

	return s, nil
}

// Len reports the current number of open sessions.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Map) reap() {
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()
	defer close(m.reapDone)

	for {
		select {
		case <-ticker.C:
			m.reapOnce()
		case <-m.reapStop:
			return
		}
	}
}

func (m *Map) reapOnce() {
	var expired []*Session

	m.mu.Lock()
	for key, s := range m.sessions {
		if s.idleSince() > m.opts.TTL {
			expired = append(expired, s)
			delete(m.sessions, key)
		}
	}
	if len(expired) > 0 {
		ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownGrace)
	defer cancel()
	for _, s := range expired {
		s.close(ctx)
		ExpiredTotal.Inc()
	}
}

// Shutdown stops the reaper and drains every open session, signalling
// each reader and waiting up to the configured grace period before
// force-closing stragglers.
func (m *Map) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ShutdownGrace)
	defer cancel()

	close(m.reapStop)
	<-m.reapDone

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for key, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, key)
	}
	ActiveSessions.Set(0)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.close(ctx)
		}(s)
	}
	wg.Wait()
}

var errSessionLimitExceeded = &limitExceededErr{}

type limitExceededErr struct{}

func (*limitExceededErr) Error() string { return "session table at maximum capacity" }
