// Package inbox implements the two interchangeable per-subscriber
// queue realizations behind the gwbus broker: an in-memory
// mutex/condition-variable queue (Memory) and an in-process
// publish/subscribe transport with length-prefixed framing
// (Transport, backed by an embedded NATS server). A Broker picks
// exactly one variant for its whole lifetime via broker.Options.
package inbox

import (
	"errors"

	"github.com/hexabus/gwbus/message"
)

// ErrStopped is returned by Enqueue once the inbox has been stopped,
// and is the sentinel behind a false ok from Next.
var ErrStopped = errors.New("inbox: stopped")

// Inbox is the per-subscriber queue a delivery worker drains. Both
// variants preserve FIFO ordering: messages come out of Next in the
// order their Enqueue calls returned nil.
type Inbox interface {
	// Enqueue offers m for delivery. On success the inbox becomes
	// responsible for releasing m (after delivery, or during Close's
	// drain); on failure the caller retains ownership and must
	// release m itself.
	Enqueue(m *message.Message) error

	// Next blocks until a message is ready for delivery or the inbox
	// has observed a stop request. ok is false exactly when the worker
	// must wind down without invoking Receive for this call.
	Next() (m *message.Message, ok bool)

	// Stop signals the worker to stop delivering. Idempotent, safe to
	// call concurrently with Enqueue and with an in-flight Next.
	Stop()

	// Close releases inbox resources and drains-and-destroys any
	// messages left queued after the worker goroutine has exited.
	// Close must only be called after Next has returned ok=false and
	// the worker goroutine has returned.
	Close() error
}
