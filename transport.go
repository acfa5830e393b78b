package rfcomm

// Transport is the lower-layer (L2CAP) channel a multiplexer session runs on.
// Send must be safe for concurrent use; it is called both from the receive
// context and from DLC send workers.
type Transport interface {
	// Connect requests the lower-layer connection and binds the event sink.
	// For an already accepted incoming connection it only binds the sink and
	// reports Connected.
	Connect(events TransportEvents) error

	// Disconnect requests lower-layer teardown.
	Disconnect() error

	// Send transmits one SDU.
	Send(b []byte) error

	// MTU returns the negotiated lower-layer MTU, the smaller of the rx and tx MTUs.
	MTU() int
}

// TransportEvents receives lower-layer notifications. Receive is invoked
// sequentially and must not block.
type TransportEvents interface {
	Connected()
	Disconnected()
	Receive(b []byte)
	EncryptionChanged(status uint8)
}
