package transport

import (
	"context"
	"fmt"
	"sync"

	"Go2NetShield/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher sends bodies to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     logrus.FieldLogger
}

// NewPublisher connects to the NATS server.
func NewPublisher(cfg config.NATSConfig, log logrus.FieldLogger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("gonetshield-sensor"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithField("url", cfg.URL).Info("Connected to NATS server")
	return &Publisher{nc: nc, subject: cfg.Subject, log: log}, nil
}

func (p *Publisher) Send(_ context.Context, body []byte) error {
	return p.nc.Publish(p.subject, body)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.log.Info("NATS connection drained and closed")
	}
}

// Handler processes one body and returns the reply to send when the message
// carries a reply subject.
type Handler func(ctx context.Context, body []byte) []byte

// Subscriber consumes bodies from a NATS subject. Messages are handled on a
// bounded set of goroutines; the NATS callback blocks while all are busy.
type Subscriber struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	subject  string
	dispatch *dispatcher
	log      logrus.FieldLogger
}

// NewSubscriber connects to the NATS server.
func NewSubscriber(cfg config.NATSConfig, log logrus.FieldLogger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("gonetshield-analyzer"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithFields(logrus.Fields{"url": cfg.URL, "workers": cfg.Workers}).Info("Connected to NATS server")
	return &Subscriber{nc: nc, subject: cfg.Subject, dispatch: newDispatcher(cfg.Workers), log: log}, nil
}

// Start subscribes and dispatches each message to handler.
func (s *Subscriber) Start(ctx context.Context, handler Handler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		s.dispatch.run(func() { s.serve(ctx, handler, msg) })
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.log.WithField("subject", s.subject).Info("Subscribed, waiting for messages")
	return nil
}

func (s *Subscriber) serve(ctx context.Context, handler Handler, msg *nats.Msg) {
	reply := handler(ctx, msg.Data)
	if msg.Reply == "" || reply == nil {
		return
	}
	if err := msg.Respond(reply); err != nil {
		s.log.WithError(err).Warn("Failed to send NATS reply")
	}
}

// Close unsubscribes, waits for in-flight handlers and closes the NATS
// connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.dispatch != nil {
		s.dispatch.wait()
	}
	if s.nc != nil {
		s.nc.Close()
		s.log.Info("NATS connection closed")
	}
}

// dispatcher runs functions on at most cap(slots) goroutines.
type dispatcher struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func newDispatcher(workers int) *dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &dispatcher{slots: make(chan struct{}, workers)}
}

// run blocks until a slot is free and then starts fn.
func (d *dispatcher) run(fn func()) {
	d.slots <- struct{}{}
	d.wg.Add(1)
	go func() {
		defer func() {
			<-d.slots
			d.wg.Done()
		}()
		fn()
	}()
}

func (d *dispatcher) wait() {
	d.wg.Wait()
}
