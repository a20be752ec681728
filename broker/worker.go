package broker

import (
	"log"

	"github.com/hexabus/gwbus/message"
)

// runWorker is the delivery worker for one subscriberRecord. Exactly
// one runs per attached subscriber, started by Attach and joined by
// Detach or the Broker's final teardown.
func (b *Broker) runWorker(rec *subscriberRecord) {
	defer b.wg.Done()
	defer close(rec.done)

	rec.state.Store(int32(stateRunning))
	close(rec.ready)

	for {
		m, ok := rec.inbox.Next()
		if !ok {
			rec.state.Store(int32(stateStopping))
			break
		}
		deliver(rec, m)
	}

	rec.state.Store(int32(stateExited))
}

// deliver invokes the subscriber's Receive callback for exactly one
// message, isolating a panicking Receive to this one delivery so the
// worker keeps draining.
func deliver(rec *subscriberRecord, m *message.Message) {
	defer m.Release()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broker: subscriber %v Receive panicked, continuing worker: %v", rec.sub.Handle, r)
		}
	}()
	rec.sub.Receive(rec.sub.Handle, m)
}
