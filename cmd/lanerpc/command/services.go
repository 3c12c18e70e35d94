package command

import (
	"errors"
	"log/slog"
	"sort"

	"lane-rpc/server"
)

// Demo services hosted by "lanerpc serve".

type EchoService struct {
	server.BaseService
}

func (s *EchoService) Echo(msg string) (string, error) { return msg, nil }

type ArithService struct {
	server.BaseService
}

func (s *ArithService) Add(x, y int64) (int64, error) { return x + y, nil }

func (s *ArithService) Mul(x, y int64) (int64, error) { return x * y, nil }

func (s *ArithService) Div(x, y int64) (int64, error) {
	if y == 0 {
		return 0, errors.New("divide by zero")
	}
	return x / y, nil
}

// KVService keeps its map on its lane; no locking needed.
type KVService struct {
	server.BaseService
	data map[string]any
}

func (s *KVService) Init() {
	s.data = make(map[string]any)
	slog.Info("kv_service_init", "worker", s.Worker().ID())
}

func (s *KVService) Destroy() {
	slog.Info("kv_service_destroy", "keys", len(s.data))
	s.data = nil
}

func (s *KVService) Put(key string, value any) error {
	s.data[key] = value
	return nil
}

func (s *KVService) Get(key string) (any, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, errors.New("key not found: " + key)
	}
	return v, nil
}

func (s *KVService) Keys() ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func demoServices() []server.Service {
	echo := &EchoService{}
	echo.ServiceID = "echo"
	arith := &ArithService{}
	arith.ServiceID = "arith"
	kv := &KVService{}
	kv.ServiceID = "kv"
	return []server.Service{echo, arith, kv}
}
