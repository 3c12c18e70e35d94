package server

import (
	"fmt"
	"log"

	"lane-rpc/protocol"
)

// ProtocolHandle routes requests and responses between lanes and servers.
// It implements protocol.Dispatcher for connectors.
type ProtocolHandle struct {
	server *LocalServer
}

// isLocal treats 0 as "unspecified", which means this server.
func (h *ProtocolHandle) isLocal(target int32) bool {
	return target == 0 || target == h.server.id
}

// SendRequest delivers req locally or through the connector for target.
func (h *ProtocolHandle) SendRequest(target int32, req *protocol.Request) error {
	if h.isLocal(target) {
		h.HandleRequest(req)
		return nil
	}
	return h.sendRemote(target, req)
}

// SendResponse has the same locality split as SendRequest.
func (h *ProtocolHandle) SendResponse(target int32, resp *protocol.Response) error {
	if h.isLocal(target) {
		h.HandleResponse(resp)
		return nil
	}
	return h.sendRemote(target, resp)
}

func (h *ProtocolHandle) sendRemote(target int32, p protocol.Protocol) error {
	c, ok := h.server.ConnectorByRemoteID(target)
	if !ok {
		err := fmt.Errorf("%w: %d", ErrNoConnector, target)
		log.Printf("[ProtocolHandle] drop %T: %v", p, err)
		return err
	}
	if err := c.SendProtocol(target, p); err != nil {
		log.Printf("[ProtocolHandle] send %T to %d: %v", p, target, err)
		return err
	}
	return nil
}

// HandleRequest schedules req on the lane that owns the target service.
// An unknown service is logged and dropped; the caller observes a timeout.
func (h *ProtocolHandle) HandleRequest(req *protocol.Request) {
	w, ok := h.server.workerOf(req.ServiceID)
	if !ok {
		log.Printf("[ProtocolHandle] drop %v: service not found", req)
		return
	}
	w.Execute(func() { w.handleRequest(req) })
}

// HandleResponse schedules resp on the lane encoded in its call id.
func (h *ProtocolHandle) HandleResponse(resp *protocol.Response) {
	w, ok := h.server.WorkerByID(resp.CallID.Worker())
	if !ok {
		log.Printf("[ProtocolHandle] drop %v: no worker %d", resp, resp.CallID.Worker())
		return
	}
	w.Execute(func() { w.handleResponse(resp) })
}

// Dispatch accepts an envelope decoded by a connector.
func (h *ProtocolHandle) Dispatch(p protocol.Protocol) {
	switch v := p.(type) {
	case *protocol.Request:
		h.HandleRequest(v)
	case *protocol.Response:
		h.HandleResponse(v)
	case *protocol.PingPong:
		h.handlePingPong(v)
	case *protocol.Handshake:
		log.Printf("[ProtocolHandle] handshake from server %d (token %s)", v.ServerID, v.Token)
	default:
		log.Printf("[ProtocolHandle] unexpected envelope %T", p)
	}
}

func (h *ProtocolHandle) handlePingPong(p *protocol.PingPong) {
	if h.isLocal(p.ServerID) {
		return
	}
	if !p.Pong {
		pong := &protocol.PingPong{
			Base: protocol.Base{ServerID: h.server.id},
			Time: p.Time,
			Pong: true,
		}
		h.sendRemote(p.ServerID, pong)
		return
	}
	if c, ok := h.server.ConnectorByRemoteID(p.ServerID); ok {
		if obs, ok := c.(PongObserver); ok {
			obs.ObservePong(p)
		}
	}
}
