package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ElliotLearnsThings/KVOpt/internal/wire"
)

var (
	ErrNotFound     = errors.New("client: key not found")
	ErrEmptyKey     = errors.New("client: empty key")
	ErrKeyTooLong   = errors.New("client: key exceeds 63 bytes")
	ErrValueTooLong = errors.New("client: value exceeds 56 bytes")
)

// Client speaks the frame protocol over a byte-stream pair, typically the
// stdin and stdout pipes of a kvopt process. Operations are serialized; one
// request and its response complete before the next begins.
//
// The response stream is self-describing only by its leading bytes: a
// stored payload whose first two bytes happen to spell a miss or rejection
// record cannot be told apart from one, and Get returns the corresponding
// error for such payloads.
type Client struct {
	mu sync.Mutex
	w  io.Writer
	r  *bufio.Reader
}

// New wraps the write side of the server's input stream and the read side
// of its output stream.
func New(w io.Writer, r io.Reader) *Client {
	return &Client{w: w, r: bufio.NewReader(r)}
}

// Get returns the 56-byte payload stored under key.
func (c *Client) Get(key []byte) ([]byte, error) {
	k, err := padKey(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(wire.Frame{Op: wire.OpGet, Key: k}); err != nil {
		return nil, err
	}

	head, err := c.r.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch string(head) {
	case wire.RespMiss:
		c.r.Discard(2)
		return nil, ErrNotFound
	case wire.RespEmptyKey:
		c.r.Discard(2)
		return nil, ErrEmptyKey
	}

	buf := make([]byte, wire.PayloadSize+1)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if buf[wire.PayloadSize] != '\n' {
		return nil, fmt.Errorf("malformed payload record %q", buf)
	}
	return buf[:wire.PayloadSize], nil
}

// Insert stores a payload of up to 56 bytes under key, expiring
// expireSeconds after insertion; 0 never expires. Shorter keys and
// payloads are zero padded to their wire sizes.
func (c *Client) Insert(key, payload []byte, expireSeconds uint16) error {
	k, err := padKey(key)
	if err != nil {
		return err
	}
	if len(payload) > wire.PayloadSize {
		return ErrValueTooLong
	}
	var p [wire.PayloadSize]byte
	copy(p[:], payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	f := wire.Frame{Op: wire.OpInsert, Key: k, Value: wire.EncodeValue(p, 0, expireSeconds)}
	if err := c.send(f); err != nil {
		return err
	}
	return c.expectAck(wire.RespInserted)
}

// Remove deletes key. Removing an absent key succeeds.
func (c *Client) Remove(key []byte) error {
	k, err := padKey(key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(wire.Frame{Op: wire.OpRemove, Key: k}); err != nil {
		return err
	}
	return c.expectAck(wire.RespRemoved)
}

// Halt asks the server to save and stop. No response is read; the caller
// observes termination through the transport.
func (c *Client) Halt() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.send(wire.Frame{Op: wire.OpHalt})
}

func (c *Client) send(f wire.Frame) error {
	buf := wire.EncodeFrame(f)
	if _, err := c.w.Write(buf[:]); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) expectAck(want string) error {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch string(buf) {
	case want:
		return nil
	case wire.RespEmptyKey:
		return ErrEmptyKey
	default:
		return fmt.Errorf("unexpected response %q", buf)
	}
}

func padKey(key []byte) (wire.Key, error) {
	if len(key) == 0 {
		return wire.Key{}, ErrEmptyKey
	}
	if len(key) > wire.KeySize {
		return wire.Key{}, ErrKeyTooLong
	}
	var k wire.Key
	copy(k[:], key)
	if k.IsZero() {
		return wire.Key{}, ErrEmptyKey
	}
	return k, nil
}
