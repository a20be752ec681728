package broker

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hexabus/gwbus/internal/inbox"
	"github.com/hexabus/gwbus/module"
)

// workerState tracks the delivery worker's lifecycle
// (Starting -> Running -> Stopping -> Exited). It is observed by tests
// only; the worker loop itself drives behavior off the inbox's own
// Next/Stop semantics, not off this field.
type workerState int32

const (
	stateStarting workerState = iota
	stateRunning
	stateStopping
	stateExited
)

// subscriberRecord is the per-subscriber control block. It is never
// exported: the module handle inside it is owned by the module, the
// record itself is owned exclusively by its Broker.
type subscriberRecord struct {
	id    uuid.UUID // diagnostic identity, distinct from any inbox stop token
	sub   module.Subscriber
	inbox inbox.Inbox

	// done is closed by the worker goroutine immediately before it
	// returns, letting Detach and the final DecRef join it without a
	// sync.WaitGroup per record.
	done chan struct{}

	// ready is closed once the worker has entered its receive loop,
	// i.e. transitioned Starting -> Running. Attach blocks on it
	// before invoking the subscriber's optional Start callback.
	ready chan struct{}

	state atomic.Int32
}

func newSubscriberRecord(sub module.Subscriber, ib inbox.Inbox) *subscriberRecord {
	rec := &subscriberRecord{
		id:    uuid.New(),
		sub:   sub,
		inbox: ib,
		done:  make(chan struct{}),
		ready: make(chan struct{}),
	}
	rec.state.Store(int32(stateStarting))
	return rec
}

func (r *subscriberRecord) workerState() workerState {
	return workerState(r.state.Load())
}
