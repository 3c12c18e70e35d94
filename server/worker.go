package server

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync/atomic"
	"time"

	"lane-rpc/middleware"
	"lane-rpc/protocol"
)

// Worker is a single-threaded execution lane. Everything it owns (placed
// services, pending calls, the call sequence) is touched only from tasks
// running on its own loop.
type Worker struct {
	id     int32
	server *LocalServer
	queue  *taskQueue
	done   chan struct{}

	started  atomic.Bool
	stopping atomic.Bool
	running  atomic.Bool

	// Set by LocalServer.Start before the loop is spawned.
	handler middleware.HandlerFunc

	// Lane-owned.
	services map[any]*placedService
	pending  map[protocol.CallID]*pendingCall
	seq      uint32

	// Read from the tick goroutine.
	inflight atomic.Int32
	sweeping atomic.Bool
}

type placedService struct {
	svc     Service
	methods *methodSet
	live    bool // Init ran and Destroy has not
}

type pendingCall struct {
	deadline time.Time
	callback func(result any, err error)
}

func newWorker(id int32, server *LocalServer) *Worker {
	return &Worker{
		id:       id,
		server:   server,
		queue:    newTaskQueue(),
		done:     make(chan struct{}),
		services: make(map[any]*placedService),
		pending:  make(map[protocol.CallID]*pendingCall),
	}
}

func (w *Worker) ID() int32 { return w.id }

func (w *Worker) Server() *LocalServer { return w.server }

// Execute enqueues task to run later on this lane, in enqueue order.
// It never runs task inline. Tasks submitted after the lane stopped are dropped.
func (w *Worker) Execute(task func()) {
	if !w.execute(task) {
		log.Printf("[Worker-%d] stopped, task dropped", w.id)
	}
}

func (w *Worker) execute(task func()) bool {
	return w.queue.push(task)
}

// start spawns the loop, then schedules Init for services already placed.
func (w *Worker) start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.running.Store(true)
	go w.loop()
	w.Execute(w.initAll)
}

// stop schedules Destroy for every placed service and fails pending calls.
// The loop exits after that task; anything queued behind it is dropped.
func (w *Worker) stop() {
	if !w.started.Load() || !w.stopping.CompareAndSwap(false, true) {
		return
	}
	w.Execute(func() {
		w.destroyAll()
		w.failPending(ErrStopped)
		w.running.Store(false)
		if n := w.queue.close(); n > 0 {
			log.Printf("[Worker-%d] dropped %d queued tasks at stop", w.id, n)
		}
	})
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		task, ok := w.queue.pop()
		if !ok {
			return
		}
		w.run(task)
	}
}

// run executes one task. A panic is logged and the loop carries on.
func (w *Worker) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker-%d] task panic: %v\n%s", w.id, r, debug.Stack())
		}
	}()
	task()
}

// guard runs a service callback, logging a panic without aborting the caller.
func (w *Worker) guard(what string, id any, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker-%d] %s of service %v panicked: %v", w.id, what, id, r)
		}
	}()
	fn()
}

func (w *Worker) initService(p *placedService) {
	if p.live {
		return
	}
	p.live = true
	w.guard("init", p.svc.ID(), p.svc.Init)
}

func (w *Worker) destroyService(p *placedService) {
	if !p.live {
		return
	}
	p.live = false
	w.guard("destroy", p.svc.ID(), p.svc.Destroy)
}

func (w *Worker) initAll() {
	for _, p := range w.services {
		w.initService(p)
	}
}

func (w *Worker) destroyAll() {
	for _, p := range w.services {
		w.destroyService(p)
	}
}

// doAddService places svc on this lane. Runs on the lane.
func (w *Worker) doAddService(key any, svc Service) {
	if _, dup := w.services[key]; dup {
		log.Printf("[Worker-%d] service %v already placed", w.id, key)
		return
	}
	svc.bindWorker(w)
	p := &placedService{svc: svc, methods: newMethodSet(svc)}
	w.services[key] = p
	w.initService(p)
}

// doRemoveService destroys and unbinds the service, then calls removed. Runs on the lane.
func (w *Worker) doRemoveService(key any, removed func()) {
	defer removed()
	p, ok := w.services[key]
	if !ok {
		log.Printf("[Worker-%d] remove: service %v not placed", w.id, key)
		return
	}
	delete(w.services, key)
	w.destroyService(p)
	p.svc.bindWorker(nil)
}

// Call issues a request from this lane and records it as pending until a
// response arrives or callTTL passes. callback runs on this lane.
// Call must itself be invoked on this lane, for example from a service method.
func (w *Worker) Call(target int32, serviceID any, method string, args []any, callback func(result any, err error)) protocol.CallID {
	w.seq++
	id := protocol.NewCallID(w.id, w.seq)
	w.pending[id] = &pendingCall{
		deadline: time.Now().Add(w.server.callTTL),
		callback: callback,
	}
	w.inflight.Add(1)

	req := &protocol.Request{
		Base:      protocol.Base{ServerID: w.server.id},
		ServiceID: serviceID,
		CallID:    id,
		Method:    method,
		Args:      args,
	}
	if err := w.server.handle.SendRequest(target, req); err != nil {
		// Complete asynchronously so callbacks never run inside Call.
		w.Execute(func() { w.complete(id, nil, err) })
	}
	return id
}

// complete resolves a pending call once. Runs on the lane.
func (w *Worker) complete(id protocol.CallID, result any, err error) bool {
	call, ok := w.pending[id]
	if !ok {
		return false
	}
	delete(w.pending, id)
	w.inflight.Add(-1)
	call.callback(result, err)
	return true
}

func (w *Worker) handleResponse(resp *protocol.Response) {
	if !w.complete(resp.CallID, resp.Result, resp.Err()) {
		log.Printf("[Worker-%d] no pending call %s (expired or duplicate), response dropped", w.id, resp.CallID)
	}
}

// handleRequest runs the handler chain and always answers the origin.
func (w *Worker) handleRequest(req *protocol.Request) {
	resp := w.handler(context.Background(), req)
	if resp == nil {
		resp = &protocol.Response{}
	}
	resp.CallID = req.CallID
	resp.ServerID = w.server.id
	w.server.handle.SendResponse(req.ServerID, resp)
}

// invoke is the innermost handler: it calls the method on the placed service.
func (w *Worker) invoke(ctx context.Context, req *protocol.Request) *protocol.Response {
	key, err := normalizeID(req.ServiceID)
	if err != nil {
		return middleware.Fail(req, err.Error())
	}
	p, ok := w.services[key]
	if !ok || !p.live {
		return middleware.Fail(req, fmt.Sprintf("%v: %v on worker %d", ErrServiceNotFound, req.ServiceID, w.id))
	}
	result, err := p.methods.call(ctx, req.Method, req.Args)
	if err != nil {
		return middleware.Fail(req, err.Error())
	}
	return &protocol.Response{CallID: req.CallID, Result: result}
}

// update is the tick hook. It schedules a sweep of expired calls when any
// are in flight and no sweep is already queued.
func (w *Worker) update() {
	if !w.running.Load() || w.inflight.Load() == 0 {
		return
	}
	if !w.sweeping.CompareAndSwap(false, true) {
		return
	}
	if !w.execute(func() {
		defer w.sweeping.Store(false)
		w.sweep(time.Now())
	}) {
		w.sweeping.Store(false)
	}
}

func (w *Worker) sweep(now time.Time) {
	for id, call := range w.pending {
		if !now.Before(call.deadline) {
			w.complete(id, nil, fmt.Errorf("%w: call %s", ErrCallTimeout, id))
		}
	}
}

func (w *Worker) failPending(err error) {
	for id := range w.pending {
		w.complete(id, nil, err)
	}
}

// QueueLen reports how many tasks are waiting on the lane.
func (w *Worker) QueueLen() int { return w.queue.len() }
