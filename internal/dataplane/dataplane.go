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

// Package dataplane owns the downstream listening socket: it accepts
// datagrams from clients, runs them through the current FilterChain,
// resolves a destination endpoint, and dispatches the result through
// the SessionMap. Its receive-loop shape is modelled on a
// mutex-guarded, ReadFromUDPAddrPort-based connectionless listener,
// generalised with one receiver goroutine fanning datagrams out over
// a bounded channel to a fixed pool of worker goroutines, which is
// the portable alternative to one socket per worker (SO_REUSEPORT)
// across the platforms Go targets.
package dataplane

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"runtime"
	"sync"

	"github.com/go-logr/logr"

	"github.com/quilkin-proxy/quilkin/internal/cluster"
	"github.com/quilkin-proxy/quilkin/internal/endpoint"
	"github.com/quilkin-proxy/quilkin/internal/filters"
	"github.com/quilkin-proxy/quilkin/internal/session"
)

func defaultWorkerCount() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 1
}

// ErrClosed is returned once the dataplane has been shut down.
var ErrClosed = errors.New("dataplane closed")

// MaxDatagramSize is the MTU-sized buffer used to receive a single
// datagram; it matches the maximum theoretical UDP payload.
const MaxDatagramSize = 65535

// DefaultQueueDepth bounds the channel the receiver goroutine fans
// datagrams out on; once full, the receiver blocks applying
// back-pressure to its own socket read rather than growing memory
// unbounded.
const DefaultQueueDepth = 1024

// Options configures a Dataplane.
type Options struct {
	// Workers is the number of goroutines draining the received-packet
	// queue. Zero means runtime.GOMAXPROCS(0).
	Workers int
	// QueueDepth bounds the channel between the receiver goroutine and
	// the worker pool. Zero means DefaultQueueDepth.
	QueueDepth int
	Clusters   *cluster.Map
	Chain      *ChainHolder
	Sessions   *session.Map
	Log        logr.Logger
}

type packet struct {
	source  endpoint.Address
	payload []byte
}

// Dataplane binds the downstream listening socket and forwards
// datagrams between clients and endpoints.
type Dataplane struct {
	opts Options

	mu      sync.Mutex
	conn    *net.UDPConn
	closing bool

	queue    chan packet
	recvDone chan struct{}
	stop     chan struct{}
	workerWG sync.WaitGroup
}

// New constructs a Dataplane. Call ListenAndServe or Serve to start
// accepting datagrams.
func New(opts Options) *Dataplane {
	return &Dataplane{opts: opts}
}

// SetSessions binds the session table the dataplane dispatches
// forwarded datagrams through. It exists because Dataplane and
// session.Map each hold a reference to the other (Dataplane is the
// DownstreamSender sessions write replies back through): callers
// construct the Dataplane first, then the session.Map with the
// Dataplane as its Downstream, then call SetSessions before Serve.
func (d *Dataplane) SetSessions(sessions *session.Map) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.Sessions = sessions
}

// ListenAndServe binds addr and serves until Close is called or an
// unrecoverable socket error occurs.
func (d *Dataplane) ListenAndServe(addr netip.AddrPort) error {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return err
	}
	return d.Serve(conn)
}

// Serve binds the dataplane to conn and runs the receiver and worker
// pool until Close is called. conn must not be used by the caller
// afterwards. Serve blocks until the receiver loop exits.
func (d *Dataplane) Serve(conn *net.UDPConn) error {
	d.mu.Lock()
	if d.conn != nil {
		d.mu.Unlock()
		return errors.New("dataplane: already serving")
	}
	d.conn = conn
	d.closing = false

	queueDepth := d.opts.QueueDepth
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	d.queue = make(chan packet, queueDepth)
	d.recvDone = make(chan struct{})
	d.stop = make(chan struct{})
	d.mu.Unlock()

	workers := d.opts.Workers
	if workers <= 0 {
		workers = defaultWorkerCount()
	}

	d.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer d.workerWG.Done()
			d.workerLoop()
		}()
	}

	d.receiveLoop(conn)

	close(d.queue)
	d.workerWG.Wait()
	return nil
}

// receiveLoop is the single goroutine that owns the listening socket.
// It reads one datagram at a time and hands it to the worker pool
// over a bounded channel, applying back-pressure on the socket itself
// when every worker is busy.
func (d *Dataplane) receiveLoop(conn *net.UDPConn) {
	defer close(d.recvDone)

	buf := make([]byte, MaxDatagramSize)
	for {
		n, source, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			d.mu.Lock()
			closing := d.closing
			d.mu.Unlock()
			if !closing {
				d.opts.Log.V(1).Info("downstream read failed", "error", err)
			}
			return
		}

		source = netip.AddrPortFrom(source.Addr().Unmap(), source.Port())
		payload := append([]byte(nil), buf[:n]...)
		DatagramsReceivedTotal.Inc()

		select {
		case d.queue <- packet{source: endpoint.Address{AddrPort: source}, payload: payload}:
		case <-d.stop:
			return
		}
	}
}

func (d *Dataplane) workerLoop() {
	for pkt := range d.queue {
		d.handleDatagram(pkt.source, pkt.payload)
	}
}

func (d *Dataplane) handleDatagram(source endpoint.Address, payload []byte) {
	chain := d.opts.Chain.Load()

	rctx := &filters.ReadContext{Source: source, Payload: payload}
	if err := chain.Read(rctx); err != nil {
		return
	}

	destinations := rctx.Destinations
	if len(destinations) == 0 {
		destinations = d.opts.Clusters.Endpoints(cluster.Default)
	}
	if len(destinations) == 0 {
		DatagramsNoEndpointsTotal.Inc()
		return
	}

	for _, dest := range destinations {
		s, err := d.opts.Sessions.GetOrCreate(source, dest.Address)
		if err != nil {
			d.opts.Log.V(1).Info("session unavailable", "endpoint", dest.Address.String(), "error", err)
			continue
		}
		if err := s.Send(rctx.Payload); err != nil {
			d.opts.Log.V(1).Info("upstream send failed", "endpoint", dest.Address.String(), "error", err)
			continue
		}
		DatagramsForwardedTotal.Inc()
	}
}

// WriteToClient implements session.DownstreamSender: session readers
// call this to deliver an endpoint's reply back to the client over
// the single shared downstream socket.
func (d *Dataplane) WriteToClient(payload []byte, client endpoint.Address) error {
	d.mu.Lock()
	conn := d.conn
	closing := d.closing
	d.mu.Unlock()

	if conn == nil || closing {
		return ErrClosed
	}
	_, err := conn.WriteToUDPAddrPort(payload, client.AddrPort)
	return err
}

// LocalAddr returns the bound listening address, or nil if not yet
// serving.
func (d *Dataplane) LocalAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Close stops the receive loop by closing the socket, drains the
// worker pool, and waits for both to finish.
func (d *Dataplane) Close() {
	d.mu.Lock()
	if d.conn != nil {
		d.closing = true
		_ = d.conn.Close()
	}
	if d.stop != nil {
		select {
		case <-d.stop:
		default:
			close(d.stop)
		}
	}
	recvDone := d.recvDone
	d.mu.Unlock()

	if recvDone != nil {
		<-recvDone
	}
	d.workerWG.Wait()
}

// Shutdown closes the dataplane and drains its session table.
func (d *Dataplane) Shutdown(ctx context.Context) {
	d.Close()
	if d.opts.Sessions != nil {
		d.opts.Sessions.Shutdown(ctx)
	}
}
