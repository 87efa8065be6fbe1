// Package events fans relay lifecycle events out to NATS and websocket subscribers.
package events

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Relay lifecycle event types. They double as NATS subject suffixes.
const (
	RelaySubmitted = "relay.submitted"
	RelayFailed    = "relay.failed"
	RelayConfirmed = "relay.confirmed"
	RelayReverted  = "relay.reverted"
	RelayUnknown   = "relay.unknown"
)

// RelayEvent describes one step of a relayed request.
type RelayEvent struct {
	Type        string    `json:"type"`
	TxHash      string    `json:"txHash,omitempty"`
	Sender      string    `json:"sender"`
	Target      string    `json:"target,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	GasUsed     uint64    `json:"gasUsed,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink receives events. Delivery is best effort.
type Sink interface {
	Deliver(evt RelayEvent) error
}

// Publisher is satisfied by clients.NATSClient.
type Publisher interface {
	Publish(name string, payload interface{}) error
}

// PublisherSink adapts a Publisher into a Sink, using the event type as subject.
type PublisherSink struct {
	Publisher Publisher
}

func (p PublisherSink) Deliver(evt RelayEvent) error {
	return p.Publisher.Publish(evt.Type, evt)
}

// Bus delivers every emitted event to all sinks.
type Bus struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *logrus.Logger
	now    func() time.Time
}

func NewBus(logger *logrus.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{sinks: sinks, logger: logger, now: time.Now}
}

// Attach adds a sink after construction.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit never fails; sink errors are logged.
func (b *Bus) Emit(evt RelayEvent) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now().UTC()
	}
	evt.Sender = strings.ToLower(evt.Sender)
	evt.TxHash = strings.ToLower(evt.TxHash)

	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(evt); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"event":   evt.Type,
				"tx_hash": evt.TxHash,
			}).Warn("event delivery failed")
		}
	}
}
