package pubsub

// Message is one published event.
type Message struct {
	// LoggableID is an opaque identifier for debug logging. No assumptions should be made about the content.
	LoggableID string `json:"loggable_id,omitempty"`

	// Body contains the content of the message.
	Body []byte `json:"body"`
}
