package server

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
)

// Service is a unit of callable behavior bound to exactly one worker lane.
// Init, Destroy and every method call run only on that lane.
//
// Implementations embed BaseService, which supplies the lane binding.
type Service interface {
	ID() any
	Init()
	Destroy()
	Worker() *Worker
	bindWorker(w *Worker)
}

// BaseService provides the id, a no-op lifecycle and the lane binding.
//
//	type Counter struct {
//		server.BaseService
//		n int64
//	}
//
//	func (c *Counter) Incr(by int64) (int64, error) { c.n += by; return c.n, nil }
type BaseService struct {
	ServiceID any
	worker    atomic.Pointer[Worker]
}

func (s *BaseService) ID() any { return s.ServiceID }

func (s *BaseService) Init() {}

func (s *BaseService) Destroy() {}

// Worker returns the lane the service is placed on, or nil before placement.
func (s *BaseService) Worker() *Worker { return s.worker.Load() }

func (s *BaseService) bindWorker(w *Worker) { s.worker.Store(w) }

// normalizeID keys integer ids of every width as int64, since a Go int
// travels as long on the wire.
func normalizeID(id any) (any, error) {
	switch v := id.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil service id", ErrInvalidService)
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), nil
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), nil
		}
	}
	if !reflect.ValueOf(id).Comparable() {
		return nil, fmt.Errorf("%w: id of type %T is not comparable", ErrInvalidService, id)
	}
	return id, nil
}

type methodType struct {
	method    reflect.Method
	withCtx   bool // first parameter is context.Context
	argTypes  []reflect.Type
	hasResult bool
}

// methodSet is the table of remotely callable methods of one service.
type methodSet struct {
	rcvr   reflect.Value
	method map[string]*methodType
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// newMethodSet scans the exported methods of rcvr. A method is callable when
//   - its last result is error, optionally preceded by one value result
//   - it is not variadic
//
// A leading context.Context parameter receives the request context.
func newMethodSet(rcvr Service) *methodSet {
	s := &methodSet{
		rcvr:   reflect.ValueOf(rcvr),
		method: make(map[string]*methodType),
	}
	typ := s.rcvr.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt := method.Type
		if mt.IsVariadic() {
			continue
		}
		switch {
		case mt.NumOut() == 1 && mt.Out(0) == errorType:
		case mt.NumOut() == 2 && mt.Out(1) == errorType:
		default:
			continue
		}

		m := &methodType{method: method, hasResult: mt.NumOut() == 2}
		first := 1 // In(0) is the receiver
		if mt.NumIn() > 1 && mt.In(1) == contextType {
			m.withCtx = true
			first = 2
		}
		for j := first; j < mt.NumIn(); j++ {
			m.argTypes = append(m.argTypes, mt.In(j))
		}
		s.method[method.Name] = m
	}
	return s
}

// call invokes name with decoded args.
func (s *methodSet) call(ctx context.Context, name string, args []any) (any, error) {
	m, ok := s.method[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	if len(args) != len(m.argTypes) {
		return nil, fmt.Errorf("method %s expects %d arguments, got %d", name, len(m.argTypes), len(args))
	}

	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, s.rcvr)
	if m.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, arg := range args {
		v, err := convertArg(arg, m.argTypes[i])
		if err != nil {
			return nil, fmt.Errorf("method %s argument %d: %w", name, i, err)
		}
		in = append(in, v)
	}

	results := m.method.Func.Call(in)
	if errv := results[len(results)-1]; !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	if !m.hasResult {
		return nil, nil
	}
	return results[0].Interface(), nil
}

// convertArg assigns arg to a parameter of type pt, converting between
// numeric kinds since the wire may widen or narrow integers.
func convertArg(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch pt.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", pt)
	}
	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(pt) {
		return av, nil
	}
	if isNumeric(av.Kind()) && isNumeric(pt.Kind()) {
		return av.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, pt)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
