// Package persistence implements the PersistedEntityActor component (C8):
// restore-with-migration on spawn, periodic and scheduled snapshotting, and
// a final persist on shutdown, layered on top of internal/entityactor
// rather than baked into it (spec.md §4.8). Codec and Store are the
// external interfaces spec.md §6 names; GobCodec and sqlitestore are this
// runtime's concrete implementations of them.
package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"
)

// Codec turns a user-defined persisted payload into an opaque byte blob and
// back, and lets a caller identify a blob's concrete type without fully
// decoding it (spec.md §6).
type Codec interface {
	// Encode serializes msg, prefixing the frame with enough information
	// for PeekTypeCode/PeekTypeName to work without a full Decode.
	Encode(msg any) ([]byte, error)

	// Decode reverses Encode, reconstructing the concrete registered type.
	Decode(data []byte) (any, error)

	// PeekTypeCode returns the registered numeric type code embedded in
	// the frame header, without decoding the payload itself.
	PeekTypeCode(data []byte) (uint32, error)

	// PeekTypeName returns the registered type name for the frame's type
	// code.
	PeekTypeName(data []byte) (string, error)
}

// ErrUnknownType is returned by Encode when the payload type, and by
// PeekTypeName when the frame's type code, was never registered with
// RegisterType. Decode does not return it.
var ErrUnknownType = fmt.Errorf("persistence: unknown payload type")

// ErrShortFrame is returned when a blob is too small to contain a valid
// frame header.
var ErrShortFrame = fmt.Errorf("persistence: frame shorter than header")

const frameHeaderLen = 4

// GobCodec is a Codec backed by encoding/gob, framed with a 4-byte
// big-endian type code so PeekTypeCode/PeekTypeName never need to run a
// full gob decode. Every concrete payload type persisted entities use must
// be registered via RegisterType before first use; this mirrors the
// explicit dispatch.Builder registration idiom used elsewhere in this
// runtime instead of reflection-based type discovery.
type GobCodec struct {
	mu         sync.RWMutex
	nameToCode map[string]uint32
	codeToName map[uint32]string
	codeToType map[uint32]reflect.Type
	nextCode   uint32
}

// NewGobCodec creates an empty GobCodec.
func NewGobCodec() *GobCodec {
	return &GobCodec{
		nameToCode: make(map[string]uint32),
		codeToName: make(map[uint32]string),
		codeToType: make(map[uint32]reflect.Type),
	}
}

// RegisterType assigns sample's concrete type a stable numeric code under
// name, so later Encode/Decode calls for values of that type can be
// framed and recovered. Registration order determines the assigned code;
// callers should register every persisted payload type once at startup,
// in a fixed order, so codes are stable across process restarts.
func (c *GobCodec) RegisterType(name string, sample any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.nameToCode[name]; ok {
		return
	}

	c.nextCode++
	code := c.nextCode

	t := reflect.TypeOf(sample)
	c.nameToCode[name] = code
	c.codeToName[code] = name
	c.codeToType[code] = t

	gob.RegisterName(name, reflect.New(t).Elem().Interface())
}

func (c *GobCodec) codeFor(t reflect.Type) (uint32, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for code, registered := range c.codeToType {
		if registered == t {
			return code, c.codeToName[code], true
		}
	}

	return 0, "", false
}

// Encode implements Codec.
func (c *GobCodec) Encode(msg any) ([]byte, error) {
	t := reflect.TypeOf(msg)

	code, _, ok := c.codeFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(&msg); err != nil {
		return nil, fmt.Errorf("persistence: gob encode: %w", err)
	}

	out := make([]byte, frameHeaderLen+body.Len())
	binary.BigEndian.PutUint32(out[:frameHeaderLen], code)
	copy(out[frameHeaderLen:], body.Bytes())

	return out, nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(data []byte) (any, error) {
	if len(data) < frameHeaderLen {
		return nil, ErrShortFrame
	}

	var payload any
	if err := gob.NewDecoder(bytes.NewReader(data[frameHeaderLen:])).
		Decode(&payload); err != nil {

		return nil, fmt.Errorf("persistence: gob decode: %w", err)
	}

	return payload, nil
}

// PeekTypeCode implements Codec.
func (c *GobCodec) PeekTypeCode(data []byte) (uint32, error) {
	if len(data) < frameHeaderLen {
		return 0, ErrShortFrame
	}

	return binary.BigEndian.Uint32(data[:frameHeaderLen]), nil
}

// PeekTypeName implements Codec.
func (c *GobCodec) PeekTypeName(data []byte) (string, error) {
	code, err := c.PeekTypeCode(data)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	name, ok := c.codeToName[code]
	c.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: code %d", ErrUnknownType, code)
	}

	return name, nil
}
