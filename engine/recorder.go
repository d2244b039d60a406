package engine

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}

// LogRecorder writes every event to a structured logger.
type LogRecorder struct {
	logger Logger
}

// NewLogRecorder creates a recorder backed by the given logger.
func NewLogRecorder(logger Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ev Event) {
	r.logger.Info("farm event",
		"kind", ev.Kind,
		"block", ev.Block,
		"user", ev.User,
		"pool", ev.PoolID,
		"amount", ev.Amount,
		"locked", ev.Locked,
	)
}

// ChanRecorder broadcasts events to a buffered channel for off-system
// observers. When a slow consumer fills the buffer the event is dropped
// rather than blocking the engine; the accounting state is the source of
// truth, the stream is advisory.
type ChanRecorder struct {
	ch chan Event
}

// NewChanRecorder creates a recorder with the given buffer size.
func NewChanRecorder(bufferSize uint) *ChanRecorder {
	return &ChanRecorder{ch: make(chan Event, bufferSize)}
}

// Events returns the read side of the stream.
func (r *ChanRecorder) Events() <-chan Event {
	return r.ch
}

func (r *ChanRecorder) Record(ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// MultiRecorder fans one event out to several recorders in order.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ev Event) {
	for _, r := range m {
		r.Record(ev)
	}
}
