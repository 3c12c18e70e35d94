package server

import "lane-rpc/protocol"

// Connector moves envelopes to and from one remote server. LocalServer
// finds a connector purely by its remote id.
type Connector interface {
	RemoteID() int32
	// Start begins delivering inbound envelopes to d. Called once from LocalServer.Start.
	Start(d protocol.Dispatcher) error
	// Update is the periodic maintenance hook, called from the tick goroutine.
	Update()
	SendProtocol(target int32, p protocol.Protocol) error
}

// PongObserver is implemented by connectors that track peer liveness.
type PongObserver interface {
	ObservePong(p *protocol.PingPong)
}
