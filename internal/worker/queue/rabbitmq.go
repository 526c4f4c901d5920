package queue

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type RabbitMQOptions struct {
	URL           string
	Exchange      string
	RoutingKey    string
	QueueName     string
	ConsumerTag   string
	PrefetchCount int
	RetryAttempts int
	RetryDelay    time.Duration
}

// RabbitMQ owns the broker connection. Publishers and consumers get their
// own channels from it.
type RabbitMQ struct {
	conn   *amqp.Connection
	opts   RabbitMQOptions
	logger zerolog.Logger
}

func DialRabbitMQ(opts RabbitMQOptions, logger zerolog.Logger) (*RabbitMQ, error) {
	logger = logger.With().Str("component", "rabbitmq").Logger()

	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(opts.URL)
		if err == nil {
			break
		}
		logger.Warn().
			Err(err).
			Int("attempt", i).
			Int("max_attempts", attempts).
			Msg("RabbitMQ is not ready, retrying")
		if i < attempts {
			time.Sleep(opts.RetryDelay * time.Duration(i))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	r := &RabbitMQ{conn: conn, opts: opts, logger: logger}
	if err := r.setupQueue(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().Msg("Connected to RabbitMQ")
	return r, nil
}

func (r *RabbitMQ) setupQueue() error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		r.opts.Exchange, // name
		"direct",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		r.opts.QueueName, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,            // queue name
		r.opts.RoutingKey, // routing key
		r.opts.Exchange,   // exchange
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	r.logger.Info().
		Str("exchange", r.opts.Exchange).
		Str("queue", q.Name).
		Str("routing_key", r.opts.RoutingKey).
		Msg("RabbitMQ queue setup complete")

	return nil
}

func (r *RabbitMQ) NewPublisher() (Publisher, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publisher channel: %w", err)
	}
	return NewRabbitMQPublisher(ch, r.opts.Exchange, r.opts.RoutingKey, r.logger), nil
}

func (r *RabbitMQ) NewConsumer() (Consumer, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	return NewRabbitMQConsumer(ch, r.opts.QueueName, r.opts.ConsumerTag, r.opts.PrefetchCount, r.logger), nil
}

func (r *RabbitMQ) Ping() error {
	if r.conn == nil || r.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			return err
		}
	}
	return nil
}
