package player

// Metrics receives engine events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	FrameDecoded(kind StreamKind)
	PacketDropped(kind StreamKind)
	FramePresented()
	QueueDepth(kind StreamKind, n int)
	StateChanged(to State)
	Rebuffered()
	Seeked(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) FrameDecoded(StreamKind)    {}
func (nopMetrics) PacketDropped(StreamKind)   {}
func (nopMetrics) FramePresented()            {}
func (nopMetrics) QueueDepth(StreamKind, int) {}
func (nopMetrics) StateChanged(State)         {}
func (nopMetrics) Rebuffered()                {}
func (nopMetrics) Seeked(bool)                {}
