package sensor

import (
	"encoding/json"
	"fmt"

	"Go2NetShield/internal/secure"
)

// Encoder turns a payload into a request body.
type Encoder interface {
	Encode(p secure.Payload) ([]byte, error)
}

// SealedEncoder wraps payloads in a signed, encrypted envelope.
type SealedEncoder struct {
	Sealer *secure.Sealer
}

func (e SealedEncoder) Encode(p secure.Payload) ([]byte, error) {
	env, err := e.Sealer.Seal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}
	return json.Marshal(env)
}

// PlainEncoder sends payloads as they are. Only for trusted lab networks.
type PlainEncoder struct{}

func (PlainEncoder) Encode(p secure.Payload) ([]byte, error) {
	return json.Marshal(p)
}
