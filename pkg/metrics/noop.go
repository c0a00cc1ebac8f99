package metrics

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordJob(string, string, float64) {}
func (Noop) RecordSignal(string)               {}
func (Noop) RecordQueueDepth(int)              {}
func (Noop) RecordError(string)                {}
func (Noop) RecordLatency(string, float64)     {}
