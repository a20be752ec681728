package inbox

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/hexabus/gwbus/message"
)

// TransportHub owns the single embedded, in-process NATS server a
// Broker shares across every subscriber's Transport inbox. One Hub per
// Broker; never shared across Brokers.
type TransportHub struct {
	srv     *server.Server
	subject string // broker-unique subject prefix; per-subscriber subjects nest under it
}

// NewTransportHub starts an embedded NATS server bound to no network
// listener at all: subscribers reach it through in-process connections
// only, never a socket. A process-unique inproc URL is still minted
// and surfaced for diagnostics.
func NewTransportHub() (*TransportHub, error) {
	opts := &server.Options{
		DontListen: true,
		NoLog:      true,
		NoSigs:     true,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("inbox: starting embedded transport: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(transportStartTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("inbox: embedded transport did not become ready")
	}

	return &TransportHub{
		srv:     srv,
		subject: "gwbus." + uuid.NewString(),
	}, nil
}

// URL is the process-unique inproc address this hub's broker owns.
func (h *TransportHub) URL() string { return "inproc://" + h.subject[len("gwbus."):] }

// Close shuts the embedded server down. Must only be called once every
// Transport inbox derived from it has been closed.
func (h *TransportHub) Close() {
	h.srv.Shutdown()
	h.srv.WaitForShutdown()
}

// NewSubscriberInbox connects a fresh in-process connection for one
// subscriber and returns its Transport inbox, ready to Enqueue/Next.
func (h *TransportHub) NewSubscriberInbox() (*Transport, error) {
	nc, err := nats.Connect("", nats.InProcessServer(h.srv), nats.Name("gwbus-subscriber"))
	if err != nil {
		return nil, fmt.Errorf("inbox: connecting in-process subscriber: %w", err)
	}

	subject := h.subject + "." + uuid.NewString()
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("inbox: subscribing: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tok := stopTokenBytes()

	return &Transport{
		nc:      nc,
		sub:     sub,
		subject: subject,
		ctx:     ctx,
		cancel:  cancel,
		stopTok: tok,
	}, nil
}

// stopTokenBytes mints a random 128-bit sentinel. It cannot be
// mistaken for a legitimate frame: every message.MarshalBinary output
// is at least 12 bytes and begins with the little-endian wire version
// 0x00000001, while the token is 16 raw UUID bytes, and Next compares
// all 16 before treating a frame as the stop signal.
func stopTokenBytes() []byte {
	id := uuid.New()
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

const transportStartTimeout = 5 * time.Second

// Transport is the transport-backed inbox: each subscriber owns one
// in-process NATS connection subscribed, with no content filter, to
// its own subject under the broker's shared subject prefix.
type Transport struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	ctx     context.Context
	cancel  context.CancelFunc
	stopTok []byte
	stopped atomic.Bool
}

func (t *Transport) Enqueue(m *message.Message) error {
	if t.stopped.Load() {
		return ErrStopped
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("inbox: encoding for transport: %w", err)
	}
	if err := t.nc.Publish(t.subject, data); err != nil {
		return fmt.Errorf("inbox: publishing: %w", err)
	}
	// The encoded frame now carries the content; release the reference
	// this inbox took ownership of. Next reconstructs a fresh Message
	// from the frame on the consuming side.
	m.Release()
	return nil
}

func (t *Transport) Next() (*message.Message, bool) {
	for {
		natsMsg, err := t.sub.NextMsgWithContext(t.ctx)
		if err != nil {
			// Context cancelled (Stop's fallback) or subscription torn
			// down. Unrecoverable; the worker must wind down.
			return nil, false
		}
		if bytes.Equal(natsMsg.Data, t.stopTok) {
			return nil, false
		}
		m, err := message.Unmarshal(natsMsg.Data)
		if err != nil {
			log.Printf("inbox: dropping malformed transport frame on %s: %v", t.subject, err)
			continue
		}
		return m, true
	}
}

func (t *Transport) Stop() {
	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	// The stop token drains in FIFO order behind anything already in
	// flight, so messages enqueued before Stop are still delivered.
	// If the token cannot be pushed out, cancel the receive context so
	// a blocked Next unblocks anyway and Detach cannot hang.
	if err := t.nc.Publish(t.subject, t.stopTok); err != nil {
		t.cancel()
		return
	}
	if err := t.nc.Flush(); err != nil {
		t.cancel()
	}
}

func (t *Transport) Close() error {
	t.cancel()
	if err := t.sub.Unsubscribe(); err != nil {
		log.Printf("inbox: unsubscribe %s: %v", t.subject, err)
	}
	t.nc.Close()
	return nil
}
