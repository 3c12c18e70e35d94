package protocol

import "fmt"

// CallID correlates a Response with its Request. The high 32 bits name the
// worker lane that issued the call, the low 32 bits are that lane's sequence.
type CallID int64

func NewCallID(worker int32, seq uint32) CallID {
	return CallID(int64(worker)<<32 | int64(seq))
}

// Worker recovers the issuing lane without any lookup.
func (c CallID) Worker() int32 { return int32(int64(c) >> 32) }

func (c CallID) Seq() uint32 { return uint32(c) }

func (c CallID) String() string {
	return fmt.Sprintf("%d/%d", c.Worker(), c.Seq())
}
