package protocol

import (
	"fmt"

	"lane-rpc/codec"
)

// Handshake opens a connection. Token identifies the connection attempt.
type Handshake struct {
	Base
	Token string
}

func (h *Handshake) TransferTo(w *codec.Writer) error {
	if err := h.Base.TransferTo(w); err != nil {
		return err
	}
	return w.Write(h.Token)
}

func (h *Handshake) TransferFrom(r *codec.Reader) (err error) {
	if err = h.Base.TransferFrom(r); err != nil {
		return err
	}
	h.Token, err = codec.ReadAs[string](r)
	return err
}

// PingPong is a liveness probe. A ping (Pong=false) is answered with a pong
// echoing Time, so the prober can measure the round trip.
type PingPong struct {
	Base
	Time int64 // Unix nanoseconds at the prober
	Pong bool
}

func (p *PingPong) TransferTo(w *codec.Writer) error {
	if err := p.Base.TransferTo(w); err != nil {
		return err
	}
	return w.WriteAll(p.Time, p.Pong)
}

func (p *PingPong) TransferFrom(r *codec.Reader) (err error) {
	if err = p.Base.TransferFrom(r); err != nil {
		return err
	}
	if p.Time, err = codec.ReadAs[int64](r); err != nil {
		return err
	}
	p.Pong, err = codec.ReadAs[bool](r)
	return err
}

// Request invokes Method on the service ServiceID.
type Request struct {
	Base
	ServiceID any
	CallID    CallID
	Method    string
	Args      []any
}

func (q *Request) TransferTo(w *codec.Writer) error {
	if err := q.Base.TransferTo(w); err != nil {
		return err
	}
	args := q.Args
	if args == nil {
		args = []any{}
	}
	return w.WriteAll(q.ServiceID, int64(q.CallID), q.Method, args)
}

func (q *Request) TransferFrom(r *codec.Reader) (err error) {
	if err = q.Base.TransferFrom(r); err != nil {
		return err
	}
	if q.ServiceID, err = r.Read(); err != nil {
		return err
	}
	callID, err := codec.ReadAs[int64](r)
	if err != nil {
		return err
	}
	q.CallID = CallID(callID)
	if q.Method, err = codec.ReadAs[string](r); err != nil {
		return err
	}
	q.Args, err = codec.ReadAs[[]any](r)
	return err
}

func (q *Request) String() string {
	return fmt.Sprintf("Request{from=%d service=%v method=%s call=%s}", q.ServerID, q.ServiceID, q.Method, q.CallID)
}

// Response answers the Request with the same CallID. ServerID is the
// responding server. A non-empty Failure means the call failed.
type Response struct {
	Base
	CallID  CallID
	Result  any
	Failure string
}

func (s *Response) TransferTo(w *codec.Writer) error {
	if err := s.Base.TransferTo(w); err != nil {
		return err
	}
	return w.WriteAll(int64(s.CallID), s.Result, s.Failure)
}

func (s *Response) TransferFrom(r *codec.Reader) (err error) {
	if err = s.Base.TransferFrom(r); err != nil {
		return err
	}
	callID, err := codec.ReadAs[int64](r)
	if err != nil {
		return err
	}
	s.CallID = CallID(callID)
	if s.Result, err = r.Read(); err != nil {
		return err
	}
	s.Failure, err = codec.ReadAs[string](r)
	return err
}

// Err returns the failure as a *RemoteError, or nil on success.
func (s *Response) Err() error {
	if s.Failure == "" {
		return nil
	}
	return &RemoteError{ServerID: s.ServerID, Message: s.Failure}
}

func (s *Response) String() string {
	return fmt.Sprintf("Response{from=%d call=%s failed=%t}", s.ServerID, s.CallID, s.Failure != "")
}

// RemoteError is a failure reported by the server that handled a call.
type RemoteError struct {
	ServerID int32
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote server %d: %s", e.ServerID, e.Message)
}
