// Package events publishes domain events to RabbitMQ so downstream consumers
// (matching, analytics) can react to marketplace activity. Publishing is best
// effort: a nil *Publisher is a no-op, so the API runs fine without a broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Routing keys for the topic exchange.
const (
	KeyItemReported  = "item.reported"
	KeyItemReturned  = "item.returned"
	KeyClaimCreated  = "claim.submitted"
	KeyClaimResolved = "claim.resolved"
)

// ItemEvent is emitted when an item is reported or handed back.
type ItemEvent struct {
	ItemID   string    `json:"itemId"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Status   string    `json:"status"`
	PostedBy string    `json:"postedBy"`
	At       time.Time `json:"at"`
}

// ClaimEvent is emitted when a claim is submitted or resolved.
type ClaimEvent struct {
	ClaimID    string    `json:"claimId"`
	ItemID     string    `json:"itemId"`
	ClaimantID string    `json:"claimantId"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

// Publisher sends events to a durable topic exchange.
type Publisher struct {
	exchange string
	url      string

	// mu guards conn and channel, which the reconnect goroutine swaps out
	// from under concurrent publishers.
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher connects to RabbitMQ and declares the exchange. Declaring is
// idempotent, so multiple API instances can start in any order.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p := &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		url:      url,
	}

	go p.handleReconnect()

	log.Info().Str("exchange", exchange).Msg("event publisher initialized")
	return p, nil
}

// PublishItemReported emits an item.reported event.
func (p *Publisher) PublishItemReported(ctx context.Context, ev ItemEvent) {
	p.publish(ctx, KeyItemReported, ev)
}

// PublishItemReturned emits an item.returned event.
func (p *Publisher) PublishItemReturned(ctx context.Context, ev ItemEvent) {
	p.publish(ctx, KeyItemReturned, ev)
}

// PublishClaimSubmitted emits a claim.submitted event.
func (p *Publisher) PublishClaimSubmitted(ctx context.Context, ev ClaimEvent) {
	p.publish(ctx, KeyClaimCreated, ev)
}

// PublishClaimResolved emits a claim.resolved event.
func (p *Publisher) PublishClaimResolved(ctx context.Context, ev ClaimEvent) {
	p.publish(ctx, KeyClaimResolved, ev)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) {
	if p == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("routing_key", routingKey).Msg("marshal event payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()
	if channel == nil {
		log.Warn().Str("routing_key", routingKey).Msg("publish skipped, channel unavailable")
		return
	}

	err = channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("routing_key", routingKey).Msg("publish event failed")
		return
	}

	log.Debug().Str("routing_key", routingKey).Int("body_size", len(body)).Msg("event published")
}

// handleReconnect redials and redeclares the exchange when the connection
// drops.
func (p *Publisher) handleReconnect() {
	p.mu.Lock()
	closeChan := make(chan *amqp.Error)
	p.conn.NotifyClose(closeChan)
	p.mu.Unlock()

	for closeErr := range closeChan {
		if closeErr == nil {
			continue
		}
		log.Error().Err(closeErr).Msg("rabbitmq connection closed, reconnecting")

		for {
			time.Sleep(5 * time.Second)

			conn, err := amqp.Dial(p.url)
			if err != nil {
				log.Error().Err(err).Msg("rabbitmq reconnect failed")
				continue
			}

			channel, err := conn.Channel()
			if err != nil {
				conn.Close()
				log.Error().Err(err).Msg("rabbitmq channel open failed")
				continue
			}

			if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
				channel.Close()
				conn.Close()
				log.Error().Err(err).Msg("rabbitmq exchange declare failed")
				continue
			}

			p.mu.Lock()
			p.conn = conn
			p.channel = channel
			closeChan = make(chan *amqp.Error)
			conn.NotifyClose(closeChan)
			p.mu.Unlock()

			log.Info().Msg("reconnected to rabbitmq")
			break
		}
	}
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	channel, conn := p.channel, p.conn
	p.mu.Unlock()
	if channel != nil {
		if err := channel.Close(); err != nil {
			log.Warn().Err(err).Msg("close rabbitmq channel")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck reports whether the connection is usable.
func (p *Publisher) HealthCheck() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}
