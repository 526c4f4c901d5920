package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type rabbitMQConsumer struct {
	channel       *amqp.Channel
	queue         string
	consumerTag   string
	prefetchCount int
	logger        zerolog.Logger
}

func NewRabbitMQConsumer(channel *amqp.Channel, queue, consumerTag string, prefetchCount int, logger zerolog.Logger) Consumer {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	return &rabbitMQConsumer{
		channel:       channel,
		queue:         queue,
		consumerTag:   consumerTag,
		prefetchCount: prefetchCount,
		logger:        logger,
	}
}

func (c *rabbitMQConsumer) Consume(ctx context.Context) (<-chan Message, error) {
	err := c.channel.Qos(
		c.prefetchCount, // prefetch count
		0,               // prefetch size
		false,           // global
	)
	if err != nil {
		return nil, err
	}

	msgs, err := c.channel.Consume(
		c.queue,       // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, err
	}

	output := make(chan Message)

	go func() {
		defer close(output)

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("Stopping RabbitMQ consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("RabbitMQ message channel closed")
					return
				}

				delivery := msg
				message := Message{
					Body:      delivery.Body,
					Timestamp: delivery.Timestamp,
					Ack: func() error {
						return delivery.Ack(false)
					},
					Nack: func(requeue bool) error {
						return delivery.Nack(false, requeue)
					},
				}

				select {
				case output <- message:
				case <-ctx.Done():
					delivery.Nack(false, true)
					return
				}
			}
		}
	}()

	c.logger.Info().
		Str("queue", c.queue).
		Str("consumer_tag", c.consumerTag).
		Int("prefetch", c.prefetchCount).
		Msg("RabbitMQ consumer started")

	return output, nil
}

func (c *rabbitMQConsumer) QueueLength(ctx context.Context) (int, error) {
	queue, err := c.channel.QueueDeclarePassive(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return 0, err
	}

	return queue.Messages, nil
}

func (c *rabbitMQConsumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Cancel(c.consumerTag, false); err != nil {
			c.logger.Error().Err(err).Msg("Failed to cancel RabbitMQ consumer")
		}
		if err := c.channel.Close(); err != nil && err != amqp.ErrClosed {
			c.logger.Error().Err(err).Msg("Failed to close RabbitMQ consumer channel")
		}
	}

	c.logger.Info().Msg("RabbitMQ consumer closed")
	return nil
}
