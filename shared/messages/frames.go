package messages

// FullSync carries the complete state of every predicted entity. It is sent
// reliably to an observer when it joins.
type FullSync struct {
	TickRate   int
	ServerTick uint64
	Payload    []byte
}

// DeltaFrame is the per-tick authoritative frame sent from the server to one
// client. ClientTick is the client tick whose input the server consumed for
// this tick, or 0 when the client's queue was refilling. Values in Payload
// that did not change since BaselineTick are omitted.
type DeltaFrame struct {
	ServerTick   uint64
	ClientTick   uint64
	BaselineTick uint64
	Payload      []byte
}

// InputFrame carries a client's inputs for one of its ticks. AckServerTick
// acknowledges the newest DeltaFrame the client has applied.
type InputFrame struct {
	ClientTick    uint64
	AckServerTick uint64
	Payload       []byte
}
