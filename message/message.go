// Package message implements the immutable, reference-counted value
// carried across the gwbus broker: a byte payload plus a string-to-string
// property bag, with a canonical little-endian byte encoding for
// transport across process boundaries and across the inbox.Transport
// variant's in-process NATS connection.
//
// A *Message is shared by construction: Clone does not copy the
// payload or properties, it increments a reference count and returns
// the same pointer. The backing buffers are released only when the
// last holder calls Release.
package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
)

// Sentinel errors surfaced by the message API. broker reuses
// ErrInvalidArgument for its own argument validation so callers can
// errors.Is against one value regardless of which package produced it.
var (
	ErrInvalidArgument     = errors.New("message: invalid argument")
	ErrAllocationFailed    = errors.New("message: allocation failed")
	ErrSerializationFailed = errors.New("message: serialization failed")
	ErrMalformedBytes      = errors.New("message: malformed bytes")
)

// wireVersion is the only version this codec understands. Unmarshal
// rejects anything else with ErrMalformedBytes.
const wireVersion uint32 = 0x01

// maxPayloadSize bounds the payload length the wire codec will accept
// (2^31-1, the largest u32 that survives a round trip through int on
// every platform), and keeps Unmarshal from allocating an
// attacker-controlled multi-gigabyte buffer out of a hostile frame.
const maxPayloadSize = 1<<31 - 1

// Message is the pub/sub payload. The zero value is not usable; build
// one with New or Unmarshal.
type Message struct {
	mu         sync.RWMutex
	refs       int32
	payload    []byte
	properties map[string]string
	released   bool
}

// New copies payload and properties into a new Message with a
// reference count of one. Property keys must be non-empty.
func New(payload []byte, properties map[string]string) (*Message, error) {
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload too large (%d bytes)", ErrInvalidArgument, len(payload))
	}

	propsCopy := make(map[string]string, len(properties))
	for k, v := range properties {
		if k == "" {
			return nil, fmt.Errorf("%w: empty property key", ErrInvalidArgument)
		}
		propsCopy[k] = v
	}

	var payloadCopy []byte
	if len(payload) > 0 {
		payloadCopy = make([]byte, len(payload))
		copy(payloadCopy, payload)
	}

	return &Message{
		refs:       1,
		payload:    payloadCopy,
		properties: propsCopy,
	}, nil
}

// Clone increments the reference count and returns the same handle.
// It is O(1) and never copies the payload.
func (m *Message) Clone() *Message {
	atomic.AddInt32(&m.refs, 1)
	return m
}

// Release decrements the reference count. When it reaches zero the
// payload and property map are freed; further Content/Properties
// calls on this handle (or any alias of it) observe an empty value.
// Release never fails and is safe to call from multiple goroutines,
// though only the holder that actually owns a reference should call it.
func (m *Message) Release() {
	if atomic.AddInt32(&m.refs, -1) == 0 {
		m.mu.Lock()
		m.payload = nil
		m.properties = nil
		m.released = true
		m.mu.Unlock()
	}
}

// Content returns a copy of the payload bytes, valid independent of m's
// lifetime. Returns nil once the last holder has released the message.
func (m *Message) Content() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.released || len(m.payload) == 0 {
		return nil
	}
	out := make([]byte, len(m.payload))
	copy(out, m.payload)
	return out
}

// Properties returns a read-only copy of the property map. The
// returned map is independent of m's lifetime: callers may hold it
// after Release.
func (m *Message) Properties() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.properties)
}

// MarshalBinary encodes the message into its canonical byte form:
//
//	u32 version = 0x01
//	u32 prop_count
//	repeat prop_count times: u32 key_len, key bytes, u32 val_len, value bytes
//	u32 payload_size
//	payload bytes
//
// Properties are serialized before payload; every length is
// little-endian and fixed-width.
func (m *Message) MarshalBinary() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.released {
		return nil, fmt.Errorf("%w: message already released", ErrSerializationFailed)
	}

	size := 8 // version + prop_count
	for k, v := range m.properties {
		size += 4 + len(k) + 4 + len(v)
	}
	size += 4 + len(m.payload)

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], wireVersion)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.properties)))
	off += 4
	for k, v := range m.properties {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(k)))
		off += 4
		off += copy(buf[off:], k)
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(v)))
		off += 4
		off += copy(buf[off:], v)
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.payload)))
	off += 4
	off += copy(buf[off:], m.payload)

	return buf[:off], nil
}

// Unmarshal parses the canonical byte form produced by MarshalBinary
// and returns a fresh Message with a reference count of one. Any
// truncation, any inner length exceeding the remaining input, or a
// version mismatch yields ErrMalformedBytes. No inner length is ever
// trusted beyond what remains in data.
func Unmarshal(data []byte) (*Message, error) {
	r := &reader{data: data}

	version, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrMalformedBytes, err)
	}
	if version != wireVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedBytes, version)
	}

	propCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: reading prop_count: %v", ErrMalformedBytes, err)
	}

	properties := make(map[string]string, propCount)
	for i := uint32(0); i < propCount; i++ {
		key, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("%w: reading property %d key: %v", ErrMalformedBytes, i, err)
		}
		val, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("%w: reading property %d value: %v", ErrMalformedBytes, i, err)
		}
		properties[key] = val
	}

	payloadSize, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: reading payload_size: %v", ErrMalformedBytes, err)
	}
	if payloadSize > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload_size %d exceeds limit", ErrMalformedBytes, payloadSize)
	}
	payload, err := r.bytes(int(payloadSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading payload: %v", ErrMalformedBytes, err)
	}

	if !r.exhausted() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBytes, r.remaining())
	}

	return New(payload, properties)
}

// reader walks a byte slice without ever trusting a length beyond
// what's left.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int { return len(r.data) - r.pos }
func (r *reader) exhausted() bool { return r.remaining() == 0 }

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("need 4 bytes, have %d", r.remaining())
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("need %d bytes, have %d", n, r.remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) lenPrefixedString() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if n > maxPayloadSize {
		return "", fmt.Errorf("length %d exceeds limit", n)
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
