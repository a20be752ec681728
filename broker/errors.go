package broker

import (
	"errors"
	"fmt"

	"github.com/hexabus/gwbus/message"
)

// Sentinel errors surfaced at the Broker boundary.
// ErrInvalidArgument is message.ErrInvalidArgument itself, not a
// look-alike, so callers never have to guess which package's sentinel
// a given error wraps.
var (
	ErrInvalidArgument       = message.ErrInvalidArgument
	ErrNotFound              = errors.New("broker: subscriber not found")
	ErrWorkerStartFailed     = errors.New("broker: delivery worker failed to start")
	ErrTransportInitFailed   = errors.New("broker: transport initialization failed")
	ErrTransportAttachFailed = errors.New("broker: transport attach failed")

	// ErrPartialFailure is the sentinel every *PartialFailureError
	// matches via errors.Is, regardless of which subscribers failed.
	ErrPartialFailure = errors.New("broker: publish partially failed")
)

// PartialFailureError is returned by Publish when the enqueue failed
// for at least one subscriber (including the case where it failed for
// every subscriber). The
// publisher is informed but never blocked: Publish still attempted
// delivery to every other subscriber before returning this.
type PartialFailureError struct {
	// Failures holds one error per subscriber whose enqueue failed,
	// already annotated with that subscriber's handle.
	Failures []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("broker: publish failed for %d subscriber(s): %v", len(e.Failures), errors.Join(e.Failures...))
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() []error {
	return e.Failures
}
