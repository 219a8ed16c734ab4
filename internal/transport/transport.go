// Package transport delivers encoded feature vectors from sensors to the
// analyzer over HTTP or NATS.
package transport

import (
	"context"
	"fmt"

	"Go2NetShield/internal/config"

	"github.com/sirupsen/logrus"
)

// Sender delivers one request body. Delivery is best effort; callers log and
// drop on error.
type Sender interface {
	Send(ctx context.Context, body []byte) error
	Close()
}

// NewSender builds the sender selected by cfg.
func NewSender(cfg *config.Config, log logrus.FieldLogger) (Sender, error) {
	switch cfg.Transport.Type {
	case "http":
		return NewHTTPSender(cfg.Transport.AnalyzerURL, config.Duration(cfg.Transport.Timeout), log), nil
	case "nats":
		p, err := NewPublisher(cfg.NATS, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown transport type: '%s'", cfg.Transport.Type)
	}
}
