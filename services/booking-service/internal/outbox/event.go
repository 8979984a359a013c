package outbox

// Event is one row appended to outbox_events in the same transaction as the
// booking write it describes.
type Event struct {
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
}
