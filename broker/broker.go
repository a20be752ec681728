// Package broker implements the core of the gwbus in-process message
// bus: a reference-counted, thread-safe pub/sub engine to which
// independently authored modules attach via the module package.
// Publishing a message hands one clone to every other attached
// subscriber's own delivery worker goroutine, asynchronously and
// without blocking the publisher. Ordering is per-subscriber FIFO;
// no ordering is promised across subscribers.
package broker

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/hexabus/gwbus/internal/inbox"
	"github.com/hexabus/gwbus/message"
	"github.com/hexabus/gwbus/module"
)

// Broker is the pub/sub engine. The zero value is not usable;
// construct one with New.
type Broker struct {
	opts Options
	hub  *inbox.TransportHub // non-nil only when opts.InboxVariant == TransportVariant

	mu      sync.Mutex // registry lock
	records []*subscriberRecord
	closed  bool

	wg sync.WaitGroup

	refs int32
}

// New creates a broker with a reference count of one.
func New(opts Options) (*Broker, error) {
	b := &Broker{opts: opts, refs: 1}

	if opts.InboxVariant == TransportVariant {
		hub, err := inbox.NewTransportHub()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportInitFailed, err)
		}
		b.hub = hub
	}

	return b, nil
}

// IncRef increments the reference count. No-op on a nil Broker.
func (b *Broker) IncRef() {
	if b == nil {
		return
	}
	atomic.AddInt32(&b.refs, 1)
}

// DecRef decrements the reference count, tearing the broker down when
// it reaches zero: every worker is stopped and joined before the
// transport (if any) is closed. No-op on a nil Broker. Never fails.
func (b *Broker) DecRef() {
	if b == nil {
		return
	}
	if atomic.AddInt32(&b.refs, -1) > 0 {
		return
	}
	b.teardown()
}

// Close is an io.Closer-shaped alias for DecRef.
func (b *Broker) Close() error {
	b.DecRef()
	return nil
}

func (b *Broker) teardown() {
	b.mu.Lock()
	records := b.records
	b.records = nil
	b.closed = true
	b.mu.Unlock()

	if len(records) > 0 {
		// Callers are expected to Detach every subscriber before the
		// final DecRef. Log the violation, then free anyway.
		log.Printf("broker: final DecRef with %d subscriber(s) still attached; detaching them now", len(records))
	}

	for _, rec := range records {
		rec.inbox.Stop()
	}
	for _, rec := range records {
		<-rec.done
	}
	for _, rec := range records {
		if err := rec.inbox.Close(); err != nil {
			log.Printf("broker: closing inbox for %v: %v", rec.sub.Handle, err)
		}
	}

	if b.hub != nil {
		b.hub.Close()
	}
}

// Attach registers a subscriber and starts its delivery worker. All
// steps are all-or-nothing observable: on any failure, every partially
// created resource is released and the registry is unchanged.
func (b *Broker) Attach(sub module.Subscriber) error {
	if b == nil {
		return fmt.Errorf("%w: nil broker", ErrInvalidArgument)
	}
	if !sub.Valid() {
		return fmt.Errorf("%w: subscriber requires Handle and Receive", ErrInvalidArgument)
	}

	var ib inbox.Inbox
	var err error
	switch b.opts.InboxVariant {
	case TransportVariant:
		ib, err = b.hub.NewSubscriberInbox()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportAttachFailed, err)
		}
	default:
		ib = inbox.NewMemory()
	}

	rec := newSubscriberRecord(sub, ib)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ib.Close()
		return fmt.Errorf("%w: broker is closed", ErrInvalidArgument)
	}
	b.records = append(b.records, rec)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.runWorker(rec)

	// Wait for the worker to enter its receive loop before the
	// subscriber is told the broker is ready, so a Start that
	// immediately Publishes is guaranteed to find itself already
	// attached and draining.
	<-rec.ready

	if b.opts.AttachStartCallbackEnabled && sub.Start != nil {
		sub.Start(sub.Handle)
	}

	return nil
}

// Detach removes the subscriber whose Handle equals handle, stops and
// joins its delivery worker, and drains-and-destroys any residual
// queued messages. Safe to call concurrently with Publish.
func (b *Broker) Detach(handle module.Handle) error {
	if b == nil || handle == nil {
		return fmt.Errorf("%w: nil broker or handle", ErrInvalidArgument)
	}

	b.mu.Lock()
	idx := -1
	for i, rec := range b.records {
		if rec.sub.Handle == handle {
			idx = i
			break
		}
	}
	if idx == -1 {
		b.mu.Unlock()
		return ErrNotFound
	}
	rec := b.records[idx]
	b.records = append(b.records[:idx:idx], b.records[idx+1:]...)
	b.mu.Unlock()

	rec.inbox.Stop()
	<-rec.done
	if err := rec.inbox.Close(); err != nil {
		log.Printf("broker: closing inbox for %v: %v", handle, err)
	}
	return nil
}

// Publish clones m once per attached subscriber other than source
// (which may be nil to address every subscriber) and enqueues each
// clone into that subscriber's inbox. The caller retains ownership of
// m and must Release it itself; Publish never blocks on a slow
// subscriber past that subscriber's own enqueue step. Per-subscriber
// enqueue failures are isolated and logged; Publish returns a
// *PartialFailureError if any occurred, nil otherwise.
func (b *Broker) Publish(source module.Handle, m *message.Message) error {
	if b == nil || m == nil {
		return fmt.Errorf("%w: nil broker or message", ErrInvalidArgument)
	}

	b.mu.Lock()
	targets := make([]*subscriberRecord, 0, len(b.records))
	for _, rec := range b.records {
		if source != nil && rec.sub.Handle == source {
			continue
		}
		targets = append(targets, rec)
	}
	b.mu.Unlock()

	var failures []error
	for _, rec := range targets {
		clone := m.Clone()
		if err := rec.inbox.Enqueue(clone); err != nil {
			clone.Release()
			log.Printf("broker: enqueue to subscriber %v failed: %v", rec.sub.Handle, err)
			failures = append(failures, fmt.Errorf("subscriber %v: %w", rec.sub.Handle, err))
		}
	}

	if len(failures) > 0 {
		return &PartialFailureError{Failures: failures}
	}
	return nil
}

// SubscriberCount returns the number of currently attached
// subscribers. Useful for shutdown diagnostics and tests.
func (b *Broker) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
