// Package report publishes extraction progress events for operational
// consumers, so long corpus runs can be watched without tailing logs.
package report

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"QuicSieve/internal/config"
)

// Publisher emits pipeline events to NATS as JSON. It implements
// model.EventPublisher.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Publish serializes the event to JSON and publishes it on
// "<prefix>.<suffix>".
func (p *Publisher) Publish(suffix string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.nc.Publish(p.prefix+"."+suffix, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
