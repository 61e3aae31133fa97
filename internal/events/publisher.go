package events

// Publisher delivers domain events to an external broker. Implementations
// must be safe for concurrent use; delivery is best effort from the ledger's
// point of view.
type Publisher interface {
	Publish(topic string, event any) error
}

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(topic string, event any) error {
	return nil
}
