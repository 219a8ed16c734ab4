package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Response is the analyzer's reply body.
type Response struct {
	Result string `json:"resultado,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HTTPSender posts bodies to the analyzer endpoint.
type HTTPSender struct {
	url    string
	client *http.Client
	log    logrus.FieldLogger
}

// NewHTTPSender creates a sender with a per-request timeout.
func NewHTTPSender(url string, timeout time.Duration, log logrus.FieldLogger) *HTTPSender {
	return &HTTPSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (s *HTTPSender) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach analyzer: %w", err)
	}
	defer resp.Body.Close()

	var out Response
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		s.log.WithError(err).Debug("Failed to read analyzer reply")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.WithError(err).WithField("status", resp.StatusCode).Debug("Analyzer reply is not JSON")
	}

	if resp.StatusCode/100 != 2 {
		if out.Error != "" {
			return fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, out.Error)
		}
		return fmt.Errorf("analyzer returned %d", resp.StatusCode)
	}
	s.log.WithField("result", out.Result).Debug("Analyzer accepted vector")
	return nil
}

func (s *HTTPSender) Close() {
	s.client.CloseIdleConnections()
}
