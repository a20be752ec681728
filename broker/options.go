package broker

// InboxVariant selects one of the two interchangeable per-subscriber
// queue realizations. A Broker commits to exactly one variant for its
// entire lifetime.
type InboxVariant int

const (
	// InMemory uses a mutex/condition-variable-guarded FIFO slice per
	// subscriber. Lower per-message cost, the default.
	InMemory InboxVariant = iota

	// TransportVariant routes every delivery through an in-process
	// publish/subscribe transport with length-prefixed framing, backed
	// by an embedded NATS server (see internal/inbox.TransportHub).
	TransportVariant
)

func (v InboxVariant) String() string {
	switch v {
	case InMemory:
		return "in_memory"
	case TransportVariant:
		return "transport"
	default:
		return "unknown"
	}
}

// Options configures a Broker at construction time.
type Options struct {
	// InboxVariant picks the per-subscriber queue implementation.
	// Zero value is InMemory.
	InboxVariant InboxVariant

	// AttachStartCallbackEnabled controls whether Attach invokes a
	// subscriber's optional Start callback. Defaults to true when
	// Options is built with DefaultOptions; the zero value of Options
	// leaves it false, so callers constructing Options by hand must
	// opt in explicitly.
	AttachStartCallbackEnabled bool
}

// DefaultOptions returns the recognized defaults: in-memory inbox,
// Start callback enabled.
func DefaultOptions() Options {
	return Options{
		InboxVariant:               InMemory,
		AttachStartCallbackEnabled: true,
	}
}
