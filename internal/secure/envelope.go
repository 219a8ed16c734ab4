// Package secure implements the authenticated envelope that carries feature
// vectors from sensors to the analyzer.
package secure

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrVerification covers both a bad signature and an AEAD failure.
	ErrVerification = errors.New("envelope verification failed")
	// ErrMalformed is returned for envelopes that cannot be decoded at all.
	ErrMalformed = errors.New("malformed envelope")
)

// Supported AEAD suites.
const (
	SuiteAESGCM   = "aes-256-gcm"
	SuiteChaCha20 = "chacha20-poly1305"
)

// Payload is the plaintext carried by an envelope.
type Payload struct {
	IP   string   `json:"ip"`
	Data []string `json:"data"`
}

// Envelope is the wire form. Every field is standard base64.
type Envelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Signature  string `json:"signature"`
}

func newAEAD(suite string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key has %d bytes, want %d", len(key), KeySize)
	}
	switch suite {
	case SuiteAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SuiteChaCha20:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("unknown cipher suite: '%s'", suite)
	}
}

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Sealer encrypts and signs payloads. Safe for concurrent use.
type Sealer struct {
	aead   cipher.AEAD
	priv   *rsa.PrivateKey
	nonces *nonceSource
}

// NewSealer creates a Sealer for the given suite and keys.
func NewSealer(suite string, key []byte, priv *rsa.PrivateKey) (*Sealer, error) {
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, err
	}
	if priv == nil {
		return nil, errors.New("private key is required")
	}
	nonces, err := newNonceSource()
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead, priv: priv, nonces: nonces}, nil
}

// Seal encrypts p under a fresh nonce and signs the ciphertext.
func (s *Sealer) Seal(p Payload) (*Envelope, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	nonce, err := s.nonces.next()
	if err != nil {
		return nil, err
	}
	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)

	digest := sha256.Sum256(ciphertext)
	signature, err := rsa.SignPSS(rand.Reader, s.priv, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to sign ciphertext: %w", err)
	}

	return &Envelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Signature:  base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// Opener verifies and decrypts envelopes. Safe for concurrent use.
type Opener struct {
	aead cipher.AEAD
	pub  *rsa.PublicKey
}

// NewOpener creates an Opener for the given suite and keys.
func NewOpener(suite string, key []byte, pub *rsa.PublicKey) (*Opener, error) {
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errors.New("public key is required")
	}
	return &Opener{aead: aead, pub: pub}, nil
}

// Open checks the signature before attempting decryption. Any failure to
// authenticate yields ErrVerification.
func (o *Opener) Open(env *Envelope) (*Payload, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformed, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformed, err)
	}
	signature, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	if len(nonce) != o.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce has %d bytes", ErrMalformed, len(nonce))
	}

	digest := sha256.Sum256(ciphertext)
	if err := rsa.VerifyPSS(o.pub, crypto.SHA256, digest[:], signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}); err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrVerification, err)
	}

	plaintext, err := o.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrVerification, err)
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return &p, nil
}
