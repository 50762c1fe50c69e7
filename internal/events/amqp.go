package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPPublisher forwards events to a topic exchange with routing keys of
// the form "crisis.<kind>". The broker is optional infrastructure: connect
// and publish failures disable the publisher with a log, they never reach
// the turn pipeline.
type AMQPPublisher struct {
	url      string
	exchange string
	log      *logrus.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	enabled bool
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string, log *logrus.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url not configured")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	log.WithField("exchange", exchange).Info("AMQP event publishing enabled")
	return &AMQPPublisher{url: url, exchange: exchange, log: log, conn: conn, channel: channel, enabled: true}, nil
}

// Publish sends one event. On failure the publisher disables itself; the
// assistant keeps running without it.
func (p *AMQPPublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Warn("event marshal failed")
		return
	}
	err = p.channel.Publish(p.exchange, "crisis."+string(ev.Kind), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   ev.Timestamp,
	})
	if err != nil {
		p.log.WithError(err).Warn("AMQP publish failed, disabling event publishing")
		p.enabled = false
	}
}

// Close tears down the broker connection.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
