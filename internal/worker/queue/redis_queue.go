package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisQueue is a list-backed work queue. Producers LPUSH onto the queue key;
// a consumer atomically moves each message onto its own processing list and
// removes it from there on ack, so an unacked message survives a crash and
// is recovered the next time that consumer starts.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string
	blockTimeout  time.Duration
	logger        zerolog.Logger
}

// InstanceTag suffixes base with the host name and process id, giving every
// worker process its own processing list. Recovery on start then only
// touches messages this process left behind.
func InstanceTag(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", base, host, os.Getpid())
}

func NewRedisQueue(client *redis.Client, key, consumerTag string, blockTimeout time.Duration, logger zerolog.Logger) *RedisQueue {
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing:" + consumerTag,
		blockTimeout:  blockTimeout,
		logger:        logger.With().Str("component", "redis-queue").Str("queue", key).Logger(),
	}
}

func (q *RedisQueue) Publish(ctx context.Context, body []byte) error {
	if err := q.client.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("failed to push job message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	recovered, err := q.recover(ctx)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		q.logger.Warn().Int("count", recovered).Msg("Recovered unacknowledged messages")
	}

	output := make(chan Message)

	go func() {
		defer close(output)

		for {
			if ctx.Err() != nil {
				q.logger.Info().Msg("Stopping Redis consumer")
				return
			}

			body, err := q.client.BRPopLPush(ctx, q.key, q.processingKey, q.blockTimeout).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					q.logger.Info().Msg("Stopping Redis consumer")
					return
				}
				q.logger.Error().Err(err).Msg("Failed to pop job message")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			message := q.message(body)
			select {
			case output <- message:
			case <-ctx.Done():
				message.Nack(true)
				return
			}
		}
	}()

	q.logger.Info().Str("processing_list", q.processingKey).Msg("Redis consumer started")
	return output, nil
}

func (q *RedisQueue) message(body string) Message {
	return Message{
		Body:      []byte(body),
		Timestamp: time.Now(),
		Ack: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return q.client.LRem(ctx, q.processingKey, 1, body).Err()
		},
		Nack: func(requeue bool) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LRem(ctx, q.processingKey, 1, body)
				if requeue {
					pipe.LPush(ctx, q.key, body)
				}
				return nil
			})
			return err
		},
	}
}

// recover moves messages left on the processing list back onto the queue.
func (q *RedisQueue) recover(ctx context.Context) (int, error) {
	count := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingKey, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to recover processing list: %w", err)
		}
		count++
	}
}

func (q *RedisQueue) QueueLength(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q *RedisQueue) Close() error {
	q.logger.Info().Msg("Redis queue closed")
	return nil
}
