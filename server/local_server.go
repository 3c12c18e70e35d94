// Package server implements the lane runtime: a LocalServer owns a fixed
// pool of single-threaded workers, the services placed on them, and the
// connectors to remote servers. ProtocolHandle routes every request and
// response between lanes, locally or through a connector.
//
// Life of one call:
//
//	Worker.Call (lane A assigns CallID = A<<32 | seq, records pending)
//	  → ProtocolHandle.SendRequest
//	    → local: HandleRequest → owning lane B: middleware chain → method (reflect.Call)
//	    → remote: Connector.SendProtocol → peer ProtocolHandle.Dispatch → ...
//	  → ProtocolHandle.SendResponse (to the request origin)
//	    → HandleResponse: lane = CallID>>32 → callback on lane A
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"lane-rpc/middleware"
	"lane-rpc/placement"
	"lane-rpc/registry"
)

const (
	DefaultUpdateInterval = 50 * time.Millisecond
	DefaultCallTTL        = 10 * time.Second
	registryTTL           = 10 // seconds, KeepAlive renews automatically
)

// LocalServer is the per-process node.
type LocalServer struct {
	id         int32
	workers    []*Worker
	connectors map[int32]Connector // fixed at construction
	connList   []Connector
	handle     *ProtocolHandle

	mu       sync.RWMutex
	services map[any]*serviceSlot

	picker         placement.Picker
	callLanes      placement.RoundRobin
	middlewares    []middleware.Middleware
	updateInterval time.Duration
	callTTL        time.Duration
	registry       registry.Registry
	advertiseAddr  string
	version        string

	started  atomic.Bool
	shutdown atomic.Bool
	stopTick chan struct{}
	tickDone chan struct{}
}

// serviceSlot is LocalServer's routing entry. The worker is recorded at
// AddService time, so requests route correctly before placement runs.
type serviceSlot struct {
	svc      Service
	worker   *Worker
	removing bool
}

// Option configures a LocalServer.
type Option func(*LocalServer)

// WithUpdateInterval sets the tick period (default 50ms).
func WithUpdateInterval(d time.Duration) Option {
	return func(s *LocalServer) {
		if d > 0 {
			s.updateInterval = d
		}
	}
}

// WithCallTTL sets how long a pending call waits before failing with ErrCallTimeout.
func WithCallTTL(d time.Duration) Option {
	return func(s *LocalServer) {
		if d > 0 {
			s.callTTL = d
		}
	}
}

// WithPlacement sets the strategy that picks a worker in AddService (default consistent hash).
func WithPlacement(p placement.Picker) Option {
	return func(s *LocalServer) {
		if p != nil {
			s.picker = p
		}
	}
}

// WithRegistry publishes the node in reg under advertiseAddr on Start and
// removes it on Shutdown. advertiseAddr must be routable from peers.
func WithRegistry(reg registry.Registry, advertiseAddr string) Option {
	return func(s *LocalServer) {
		s.registry = reg
		s.advertiseAddr = advertiseAddr
	}
}

// WithMiddleware appends request middlewares. The first one is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *LocalServer) {
		s.middlewares = append(s.middlewares, mws...)
	}
}

// WithVersion sets the version published to the registry.
func WithVersion(v string) Option {
	return func(s *LocalServer) { s.version = v }
}

// NewLocalServer creates a node with workerNum lanes (ids 0..workerNum-1)
// and one connector per remote server.
func NewLocalServer(id int32, workerNum int, connectors []Connector, opts ...Option) (*LocalServer, error) {
	if id <= 0 {
		return nil, fmt.Errorf("server: id must be positive, got %d", id)
	}
	if workerNum < 1 {
		return nil, fmt.Errorf("server: worker count must be at least 1, got %d", workerNum)
	}

	s := &LocalServer{
		id:             id,
		connectors:     make(map[int32]Connector, len(connectors)),
		services:       make(map[any]*serviceSlot),
		picker:         placement.NewConsistentHash(0),
		updateInterval: DefaultUpdateInterval,
		callTTL:        DefaultCallTTL,
		stopTick:       make(chan struct{}),
		tickDone:       make(chan struct{}),
	}
	for _, c := range connectors {
		remote := c.RemoteID()
		if remote == id || remote == 0 {
			return nil, fmt.Errorf("server: connector remote id %d is not a remote server", remote)
		}
		if _, dup := s.connectors[remote]; dup {
			return nil, fmt.Errorf("server: duplicate connector for server %d", remote)
		}
		s.connectors[remote] = c
		s.connList = append(s.connList, c)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.workers = make([]*Worker, workerNum)
	for i := range s.workers {
		s.workers[i] = newWorker(int32(i), s)
	}
	s.handle = &ProtocolHandle{server: s}
	return s, nil
}

func (s *LocalServer) ID() int32 { return s.id }

func (s *LocalServer) Handle() *ProtocolHandle { return s.handle }

func (s *LocalServer) Workers() []*Worker { return s.workers }

// WorkerByID returns the lane with the given id.
func (s *LocalServer) WorkerByID(id int32) (*Worker, bool) {
	if id < 0 || int(id) >= len(s.workers) {
		return nil, false
	}
	return s.workers[id], true
}

func (s *LocalServer) ConnectorByRemoteID(id int32) (Connector, bool) {
	c, ok := s.connectors[id]
	return c, ok
}

// Use registers a middleware. Must be called before Start.
func (s *LocalServer) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// AddService places svc on the worker chosen by the placement strategy.
func (s *LocalServer) AddService(svc Service) error {
	if svc == nil {
		return s.reject(fmt.Errorf("%w: nil service", ErrInvalidService))
	}
	key, err := normalizeID(svc.ID())
	if err != nil {
		return s.reject(err)
	}
	return s.AddServiceTo(s.workers[s.picker.Pick(key, len(s.workers))], svc)
}

// AddServiceTo places svc on w. Init runs later on w's lane.
func (s *LocalServer) AddServiceTo(w *Worker, svc Service) error {
	if svc == nil {
		return s.reject(fmt.Errorf("%w: nil service", ErrInvalidService))
	}
	if w == nil || w.server != s {
		return s.reject(fmt.Errorf("%w: not a worker of server %d", ErrInvalidWorker, s.id))
	}
	key, err := normalizeID(svc.ID())
	if err != nil {
		return s.reject(err)
	}

	s.mu.Lock()
	if _, dup := s.services[key]; dup {
		s.mu.Unlock()
		return s.reject(fmt.Errorf("%w: %v", ErrDuplicateService, svc.ID()))
	}
	s.services[key] = &serviceSlot{svc: svc, worker: w}
	s.mu.Unlock()

	if !w.execute(func() { w.doAddService(key, svc) }) {
		s.mu.Lock()
		delete(s.services, key)
		s.mu.Unlock()
		return s.reject(fmt.Errorf("%w: worker %d", ErrStopped, w.id))
	}
	return nil
}

// RemoveService schedules Destroy on the owning lane. The id stays
// resolvable until Destroy has run.
func (s *LocalServer) RemoveService(id any) error {
	key, err := normalizeID(id)
	if err != nil {
		return s.reject(err)
	}

	s.mu.Lock()
	slot, ok := s.services[key]
	if !ok || slot.removing {
		s.mu.Unlock()
		return s.reject(fmt.Errorf("%w: %v", ErrServiceNotFound, id))
	}
	slot.removing = true
	s.mu.Unlock()

	unmap := func() {
		s.mu.Lock()
		delete(s.services, key)
		s.mu.Unlock()
	}
	w := slot.worker
	if !w.execute(func() { w.doRemoveService(key, unmap) }) {
		unmap()
	}
	return nil
}

func (s *LocalServer) reject(err error) error {
	log.Printf("[LocalServer-%d] %v", s.id, err)
	return err
}

// GetService looks up a registered service by id.
func (s *LocalServer) GetService(id any) (Service, bool) {
	key, err := normalizeID(id)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.services[key]
	if !ok {
		return nil, false
	}
	return slot.svc, true
}

func (s *LocalServer) workerOf(id any) (*Worker, bool) {
	key, err := normalizeID(id)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.services[key]
	if !ok {
		return nil, false
	}
	return slot.worker, true
}

// Start starts the workers, then the connectors, then the tick.
func (s *LocalServer) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("server: already started")
	}

	// Build the middleware chain once per lane, not per request.
	chain := middleware.Chain(s.middlewares...)
	for _, w := range s.workers {
		w.handler = chain(w.invoke)
	}
	for _, w := range s.workers {
		w.start()
	}

	var g errgroup.Group
	for _, c := range s.connList {
		c := c
		g.Go(func() error {
			if err := c.Start(s.handle); err != nil {
				return fmt.Errorf("server: start connector to %d: %w", c.RemoteID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.registry != nil {
		inst := registry.ServerInstance{
			ServerID: s.id,
			Addr:     s.advertiseAddr,
			Workers:  len(s.workers),
			Version:  s.version,
		}
		if err := s.registry.Register(inst, registryTTL); err != nil {
			log.Printf("[LocalServer-%d] register in directory: %v", s.id, err)
		}
	}

	go s.tickLoop()
	log.Printf("[LocalServer-%d] started with %d workers and %d connectors", s.id, len(s.workers), len(s.connList))
	return nil
}

func (s *LocalServer) tickLoop() {
	defer close(s.tickDone)
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopTick:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick drives connector and worker maintenance. A panic in one hook is
// logged and the rest still run.
func (s *LocalServer) tick() {
	for _, c := range s.connList {
		s.safely("connector update", c.Update)
	}
	for _, w := range s.workers {
		s.safely("worker update", w.update)
	}
}

func (s *LocalServer) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[LocalServer-%d] %s panicked: %v", s.id, what, r)
		}
	}()
	fn()
}

// Call issues a request from one of the lanes and blocks until the response
// arrives, the call TTL passes, or ctx ends.
func (s *LocalServer) Call(ctx context.Context, target int32, serviceID any, method string, args ...any) (any, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	w := s.workers[s.callLanes.Pick(serviceID, len(s.workers))]
	if !w.execute(func() {
		w.Call(target, serviceID, method, args, func(v any, err error) {
			ch <- result{v, err}
		})
	}) {
		return nil, ErrStopped
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown performs graceful shutdown:
//  1. Remove the node from the directory so peers stop resolving it
//  2. Stop the tick
//  3. Stop every lane (Destroy all services, fail pending calls)
//  4. Close connectors that implement io.Closer
func (s *LocalServer) Shutdown(timeout time.Duration) error {
	if !s.started.Load() || !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	if s.registry != nil {
		if err := s.registry.Deregister(s.id); err != nil {
			log.Printf("[LocalServer-%d] deregister: %v", s.id, err)
		}
	}

	close(s.stopTick)
	<-s.tickDone

	for _, w := range s.workers {
		w.stop()
	}

	done := make(chan struct{})
	go func() {
		for _, w := range s.workers {
			<-w.done
		}
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for workers to finish")
	}

	for _, c := range s.connList {
		if closer, ok := c.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				log.Printf("[LocalServer-%d] close connector to %d: %v", s.id, c.RemoteID(), cerr)
			}
		}
	}
	return err
}
