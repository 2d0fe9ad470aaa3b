// Package redis provides a broker.Broker built on Redis Streams, for
// relaying coordinator events between processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/matchsession-go/broker"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Broker is a Redis Streams-based implementation of the broker.Broker interface.
// Each namespace is one stream; stream entry IDs are the event IDs.
type Broker struct {
	client     redis.UniversalClient
	ownsClient bool
	keyPrefix  string
	block      time.Duration
	maxLen     int64
}

// Config contains configuration options for the Redis broker.
type Config struct {
	// Client is the Redis client to use. If nil, one is dialed to RedisAddr
	// and closed by Close.
	Client redis.UniversalClient
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix is prepended to all Redis keys used by the broker.
	// ENV: MATCHSESSION_BROKER_PREFIX
	KeyPrefix string `env:"MATCHSESSION_BROKER_PREFIX,default=matchsession:broker:"`
	// Block is how long one read waits for new entries before the
	// subscription checks its context again. ENV: MATCHSESSION_BROKER_BLOCK
	Block time.Duration `env:"MATCHSESSION_BROKER_BLOCK,default=1s"`
	// MaxLen caps the entries retained per namespace; zero keeps everything.
	// ENV: MATCHSESSION_BROKER_MAXLEN
	MaxLen int64 `env:"MATCHSESSION_BROKER_MAXLEN,default=1000"`
}

// New creates a new Redis-based broker instance.
func New(config Config) *Broker {
	b := &Broker{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		block:     config.Block,
		maxLen:    config.MaxLen,
	}
	if b.client == nil {
		addr := config.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		b.client = redis.NewClient(&redis.Options{Addr: addr})
		b.ownsClient = true
	}
	if b.keyPrefix == "" {
		b.keyPrefix = "matchsession:broker:"
	}
	if b.block <= 0 {
		b.block = time.Second
	}
	return b
}

// NewFromEnv creates a broker configured by envdecode.
func NewFromEnv() (*Broker, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis broker config: %w", err)
	}
	return New(cfg), nil
}

// Close closes the Redis connection if the broker dialed it.
func (b *Broker) Close() error {
	if !b.ownsClient {
		return nil
	}
	return b.client.Close()
}

// Publish implements broker.Broker.Publish.
func (b *Broker) Publish(ctx context.Context, namespace string, data []byte) (string, error) {
	streamKey := b.streamKey(namespace)

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
	}

	eventID, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish message to stream %s: %w", streamKey, err)
	}
	return eventID, nil
}

// Subscribe implements broker.Broker.Subscribe.
func (b *Broker) Subscribe(ctx context.Context, namespace string, lastEventID string, handler broker.MessageHandler) error {
	streamKey := b.streamKey(namespace)

	startID, err := b.startID(ctx, streamKey, lastEventID)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Read without a consumer group so every subscriber sees every entry.
		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, startID},
			Count:   100,
			Block:   b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read from stream %s: %w", streamKey, err)
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				startID = message.ID

				data, ok := message.Values["data"].(string)
				if !ok {
					continue
				}
				envelope := broker.MessageEnvelope{
					ID:   message.ID,
					Data: []byte(data),
				}
				if err := handler(ctx, envelope); err != nil {
					return err
				}
			}
		}
	}
}

// startID resolves where a subscription begins. An empty lastEventID means
// the current tail of the stream, pinned now so that entries added between
// reads are not skipped.
func (b *Broker) startID(ctx context.Context, streamKey, lastEventID string) (string, error) {
	if lastEventID == "" {
		last, err := b.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("failed to read tail of stream %s: %w", streamKey, err)
		}
		if len(last) == 0 {
			return "0-0", nil
		}
		return last[0].ID, nil
	}

	if !validStreamID(lastEventID) {
		return "", fmt.Errorf("%w: %q", broker.ErrUnknownEventID, lastEventID)
	}
	return lastEventID, nil
}

// validStreamID reports whether id has the "<ms>-<seq>" shape Redis assigns.
func validStreamID(id string) bool {
	ms, seq, ok := strings.Cut(id, "-")
	return ok && isDigits(ms) && isDigits(seq)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Cleanup implements broker.Broker.Cleanup.
func (b *Broker) Cleanup(ctx context.Context, namespace string) error {
	streamKey := b.streamKey(namespace)

	err := b.client.Del(ctx, streamKey).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to cleanup namespace %s: %w", namespace, err)
	}
	return nil
}

func (b *Broker) streamKey(namespace string) string {
	return b.keyPrefix + "stream:" + namespace
}

var _ broker.Broker = (*Broker)(nil)
