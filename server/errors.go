package server

import "errors"

var (
	ErrDuplicateService = errors.New("server: duplicate service id")
	ErrServiceNotFound  = errors.New("server: service not found")
	ErrInvalidService   = errors.New("server: invalid service")
	ErrInvalidWorker    = errors.New("server: invalid worker")
	ErrMethodNotFound   = errors.New("server: method not found")
	ErrNoConnector      = errors.New("server: no connector for target server")
	ErrCallTimeout      = errors.New("server: call timed out")
	ErrStopped          = errors.New("server: stopped")
	ErrNotStarted       = errors.New("server: not started")
)
