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

// Package session implements the SessionMap: the table that gives a
// (client, endpoint) pair a stable upstream socket so that return
// traffic from an endpoint finds its way back to the originating
// client, and reaps that socket once the pair has been idle past the
// configured TTL.
package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Key identifies a session by the client and endpoint addresses it
// tunnels between.
type Key struct {
	Client   endpoint.Address
	Endpoint endpoint.Address
}

// DownstreamSender delivers a datagram back to a client on the
// dataplane's single shared listening socket. The Dataplane
// implements it; Session only depends on the narrow capability it
// needs.
//
// Session and Map hold a plain strong reference to a DownstreamSender
// rather than a weak one. The Rust implementation this is modelled on
// uses Weak<T> here to break a reference cycle between the session
// table and its owning proxy, because a strong Rc cycle there would
// never be collected. Go's tracing garbage collector reclaims cycles
// correctly, so the same concern does not apply and a plain reference
// is both simpler and sufficient.
type DownstreamSender interface {
	WriteToClient(payload []byte, client endpoint.Address) error
}

// ChainProvider resolves the currently active filter chain, so a
// long-lived Session always evaluates Write against the latest
// configuration rather than a snapshot taken at creation time.
type ChainProvider interface {
	Current() *filters.Chain
}

// Session is a single (client, endpoint) tunnel: a connected UDP
// socket plus the reader goroutine draining it.
type Session struct {
	key        Key
	conn       *net.UDPConn
	downstream DownstreamSender
	chains     ChainProvider
	log        logr.Logger

	lastUsed atomic.Int64
	done     chan struct{}
	closed   chan struct{}
	closeErr sync.Once
}

func newSession(key Key, conn *net.UDPConn, downstream DownstreamSender, chains ChainProvider, log logr.Logger) *Session {
	s := &Session{
		key:        key,
		conn:       conn,
		downstream: downstream,
		chains:     chains,
		log:        log,
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
	}
	s.lastUsed.Store(time.Now().UnixNano())
	return s
}

// Touch marks the session as used just now, postponing its expiry.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Session) idleSince() time.Duration {
	return time.Since(time.Unix(0, s.lastUsed.Load()))
}

// Send writes payload to the session's upstream endpoint.
func (s *Session) Send(payload []byte) error {
	if _, err := s.conn.Write(payload); err != nil {
		return &Error{Kind: Send, Key: s.key, Err: err}
	}
	return nil
}

// run is the session reader task: it reads datagrams from the
// upstream socket, runs them through the write side of the current
// filter chain, and forwards the result to the client over the
// shared downstream socket. It exits when close is called.
func (s *Session) run() {
	defer close(s.closed)

	buf := make([]byte, 65535)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.V(1).Info("session upstream read failed", "endpoint", s.key.Endpoint.String(), "error", err)
			return
		}

		s.Touch()

		payload := append([]byte(nil), buf[:n]...)
		wctx := &filters.WriteContext{Source: s.key.Endpoint, Dest: s.key.Client, Payload: payload}

		chain := s.chains.Current()
		if chain != nil {
			if err := chain.Write(wctx); err != nil {
				continue
			}
		}

		if err := s.downstream.WriteToClient(wctx.Payload, s.key.Client); err != nil {
			s.log.V(1).Info("session downstream write failed", "client", s.key.Client.String(), "error", err)
		}
	}
}

// close signals the reader to stop and releases the upstream socket.
// It blocks until the reader has observed the signal, bounded by ctx.
func (s *Session) close(ctx context.Context) {
	s.closeErr.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
	select {
	case <-s.closed:
	case <-ctx.Done():
	}
}
