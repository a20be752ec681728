// Package module describes the boundary contract between the gwbus
// broker and the independently authored modules that attach to it.
// Everything else about a module — how it is instantiated, where its
// configuration comes from, what it actually does with a message — is
// the module-loading glue's concern, not this package's.
package module

import "github.com/hexabus/gwbus/message"

// Handle identifies a subscriber to the broker. Any comparable value
// works; callers typically pass a *T pointing at their own state so
// Handle equality is pointer identity. The broker never dereferences a
// Handle, only compares it.
type Handle = any

// Subscriber is the descriptor a module hands to Broker.Attach. Handle
// and Receive are required; Start is optional.
type Subscriber struct {
	// Handle identifies this subscriber for the lifetime of the
	// attachment. It is also the value passed as source to Publish to
	// exclude this subscriber from its own publication.
	Handle Handle

	// Receive is invoked on this subscriber's own delivery worker
	// goroutine, once per delivered message, in the order the
	// corresponding Publish calls returned successfully. The message
	// is on loan: Receive does not own it and must call m.Clone() to
	// retain it past the call. Receive must not call Detach on its own
	// Handle synchronously — doing so deadlocks against the worker
	// that is currently running Receive. It may call Publish.
	Receive func(h Handle, m *message.Message)

	// Start, if non-nil, is invoked once after Attach succeeds and
	// this subscriber's delivery worker has begun its receive loop,
	// signaling the broker is ready to deliver. It may call Publish.
	Start func(h Handle)
}

// Valid reports whether s has the fields Attach requires.
func (s Subscriber) Valid() bool {
	return s.Handle != nil && s.Receive != nil
}
