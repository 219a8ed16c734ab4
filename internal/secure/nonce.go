package secure

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
)

// NonceSize is the AEAD nonce length shared by both suites.
const NonceSize = 12

// ErrNonceExhausted is returned once the counter space of a process is used up.
var ErrNonceExhausted = errors.New("nonce counter exhausted")

// nonceSource yields unique nonces: a random per-process prefix followed by
// a big-endian counter.
type nonceSource struct {
	prefix  [4]byte
	counter atomic.Uint64
}

func newNonceSource() (*nonceSource, error) {
	n := &nonceSource{}
	if _, err := rand.Read(n.prefix[:]); err != nil {
		return nil, fmt.Errorf("failed to seed nonce prefix: %w", err)
	}
	return n, nil
}

func (n *nonceSource) next() ([]byte, error) {
	c := n.counter.Add(1)
	if c == 0 {
		// Keep it pinned so later callers fail too.
		n.counter.Store(^uint64(0))
		return nil, ErrNonceExhausted
	}
	nonce := make([]byte, NonceSize)
	copy(nonce, n.prefix[:])
	binary.BigEndian.PutUint64(nonce[4:], c)
	return nonce, nil
}
