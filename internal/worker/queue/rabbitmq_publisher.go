package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type rabbitMQPublisher struct {
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

func NewRabbitMQPublisher(channel *amqp.Channel, exchange, routingKey string, logger zerolog.Logger) Publisher {
	return &rabbitMQPublisher{
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, body []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(
		publishCtx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (p *rabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil && err != amqp.ErrClosed {
		p.logger.Error().Err(err).Msg("Failed to close RabbitMQ publisher channel")
		return err
	}
	p.logger.Info().Msg("RabbitMQ publisher closed")
	return nil
}
