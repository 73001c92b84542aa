package fimolog

// EventKind tags a structured registry-observable transition: publish,
// unpublish, edge add/remove, prune selection, or commit settle.
type EventKind string

const (
	EventPublish       EventKind = "publish"
	EventUnpublish     EventKind = "unpublish"
	EventEdgeAdd       EventKind = "edge_add"
	EventEdgeRemove    EventKind = "edge_remove"
	EventPruneSelected EventKind = "prune_selected"
	EventCommitSettle  EventKind = "commit_settle"
)

// Event is a single tagged record. Fields carries whatever structured
// context the emitter chose to attach (module name, symbol key, edge
// kind, commit correlation id, ...).
type Event struct {
	Kind   EventKind
	Fields []Field
}

// Subscriber consumes tagged events. The module core owes it no
// guarantees about ordering across subscribers and must not block
// waiting on it; implementations must not call back into the registry.
type Subscriber interface {
	Notify(Event)
}

// LogSubscriber renders every event through a Logger at Info level. It is
// not installed automatically: a Registry given no subscriber uses Noop.
type LogSubscriber struct {
	log *Logger
}

// NewLogSubscriber wraps log as a Subscriber.
func NewLogSubscriber(log *Logger) *LogSubscriber {
	return &LogSubscriber{log: log}
}

func (s *LogSubscriber) Notify(e Event) {
	s.log.Infof(string(e.Kind), e.Fields...)
}

// Multi fans a single event out to several subscribers.
type Multi []Subscriber

func (m Multi) Notify(e Event) {
	for _, s := range m {
		s.Notify(e)
	}
}

// Noop discards every event; useful as a default in tests.
type Noop struct{}

func (Noop) Notify(Event) {}
