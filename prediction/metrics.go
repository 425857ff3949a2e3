package prediction

// Direction labels traffic in Metrics.AddBytes.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Metrics receives the manager's counters. Implementations must be safe for
// concurrent use since inbound traffic is counted on network goroutines.
type Metrics interface {
	ObserveRollback(depth uint64)
	ObserveReplay(ticks uint64)
	CountDiagnostic(kind DiagnosticKind)
	SetQueueDepth(player PlayerID, depth int)
	AddBytes(dir Direction, n int)
	SetEntities(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRollback(uint64)         {}
func (nopMetrics) ObserveReplay(uint64)           {}
func (nopMetrics) CountDiagnostic(DiagnosticKind) {}
func (nopMetrics) SetQueueDepth(PlayerID, int)    {}
func (nopMetrics) AddBytes(Direction, int)        {}
func (nopMetrics) SetEntities(int)                {}

func orNopMetrics(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
