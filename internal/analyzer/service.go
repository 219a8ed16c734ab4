// Package analyzer is the receiving side of the pipeline: it opens envelopes,
// classifies the vectors and records the resulting events.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Go2NetShield/internal/classifier"
	"Go2NetShield/internal/escalation"
	"Go2NetShield/internal/logging"
	"Go2NetShield/internal/metrics"
	"Go2NetShield/internal/model"
	"Go2NetShield/internal/secure"

	"github.com/sirupsen/logrus"
)

// ErrInvalidPayload is returned for plain bodies that are not a usable {ip, data} object.
var ErrInvalidPayload = errors.New("invalid payload")

// Archiver receives a copy of every classified event. Add must not block.
type Archiver interface {
	Add(model.ArchiveRecord)
}

// Result describes a successfully classified vector.
type Result struct {
	EventID        string
	IP             string
	Classification string
	Tier           escalation.Tier
	Stored         bool
}

// Service classifies incoming bodies. A nil opener selects plain mode.
type Service struct {
	opener     *secure.Opener
	classifier model.Classifier
	store      escalation.Store
	archiver   Archiver
	now        func() time.Time
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// NewService wires the analysis path.
func NewService(opener *secure.Opener, c model.Classifier, store escalation.Store, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		opener:     opener,
		classifier: c,
		store:      store,
		now:        time.Now,
		log:        log,
		metrics:    m,
	}
}

// WithArchiver attaches an analytics archive.
func (s *Service) WithArchiver(a Archiver) *Service {
	s.archiver = a
	return s
}

// Secure reports whether the service requires sealed envelopes.
func (s *Service) Secure() bool {
	return s.opener != nil
}

// Analyze runs one body through decode, classification and storage. Store
// failures are logged and counted but do not fail the request.
func (s *Service) Analyze(ctx context.Context, body []byte) (*Result, error) {
	payload, err := s.decode(body)
	if err != nil {
		s.observe(err)
		return nil, err
	}

	label, err := s.classifier.Classify(payload.Data)
	if err != nil {
		s.observe(err)
		return nil, fmt.Errorf("classification rejected: %w", err)
	}

	ev := escalation.NewEvent(payload.IP, payload.Data, label, s.now())
	res := &Result{EventID: ev.ID, IP: ev.IPOrigin, Classification: label}
	entry := s.log.WithFields(logrus.Fields{"ip": payload.IP, "classification": label, "event": ev.ID})

	tier, err := escalation.Record(ctx, s.store, ev)
	if err != nil {
		s.metrics.StoreFailures.Inc()
		entry.WithError(err).Error("Failed to record event")
	} else {
		res.Tier = tier
		res.Stored = true
		entry.WithField("tier", tier).Info("Vector classified")
	}

	if s.archiver != nil {
		s.archiver.Add(model.ArchiveRecord{
			EventID:        ev.ID,
			IPOrigin:       ev.IPOrigin,
			Classification: label,
			Features:       ev.Features,
			Timestamp:      ev.Timestamp,
		})
	}

	s.metrics.Requests.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *Service) decode(body []byte) (*secure.Payload, error) {
	if s.opener != nil {
		var env secure.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", secure.ErrMalformed, err)
		}
		payload, err := s.opener.Open(&env)
		if err != nil {
			return nil, err
		}
		return validPayload(payload)
	}

	var payload secure.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return validPayload(&payload)
}

func validPayload(p *secure.Payload) (*secure.Payload, error) {
	if p.IP == "" {
		return nil, fmt.Errorf("%w: missing ip", ErrInvalidPayload)
	}
	if len(p.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	return p, nil
}

func (s *Service) observe(err error) {
	switch StatusFor(err) {
	case http.StatusUnauthorized:
		s.metrics.VerificationFailures.Inc()
		s.metrics.Requests.WithLabelValues("unauthorized").Inc()
		logging.Security(s.log).WithError(err).Warn("Rejected envelope")
	case http.StatusBadRequest:
		s.metrics.Requests.WithLabelValues("invalid").Inc()
		s.log.WithError(err).Warn("Rejected request")
	default:
		s.metrics.Requests.WithLabelValues("error").Inc()
		s.log.WithError(err).Error("Analysis failed")
	}
}

// StatusFor maps an Analyze error to the HTTP status returned to the sensor.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, secure.ErrVerification):
		return http.StatusUnauthorized
	case errors.Is(err, secure.ErrMalformed),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, classifier.ErrDimension),
		errors.Is(err, classifier.ErrUnknownValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
