// Package bus is the tick transport between the feed handler process and its
// consumers. It rides on Redis PubSub, whose native semantics are exactly the
// contract required here: at-most-once delivery, no replay, no backpressure
// on the publisher, and silent drops when nobody is subscribed. Messages are
// topic-tagged per symbol ("tick:BTC/USDT") so consumers only receive the
// symbols they subscribed to.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

const topicPrefix = "tick:"

// Topic returns the PubSub channel name for a canonical symbol.
func Topic(symbol string) string {
	return topicPrefix + symbol
}

// Config configures the Redis connection for publisher and subscriber.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher publishes normalized ticks to per-symbol topics.
type Publisher struct {
	client *goredis.Client

	// OnPublishError is called when a publish fails (optional).
	OnPublishError func(err error)
}

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[bus] publisher connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish sends one tick to its symbol topic. Zero subscribers is not an
// error — the message is simply gone, by design.
func (p *Publisher) Publish(ctx context.Context, tick model.Tick) {
	if err := p.client.Publish(ctx, Topic(tick.Symbol), tick.JSON()).Err(); err != nil {
		log.Printf("[bus] publish %s failed: %v", tick.Symbol, err)
		if p.OnPublishError != nil {
			p.OnPublishError(err)
		}
	}
}

// Run consumes ticks from tickCh and publishes each one.
// Blocks until ctx is cancelled or tickCh is closed.
func (p *Publisher) Run(ctx context.Context, tickCh <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			p.Publish(ctx, tick)
		}
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error { return p.client.Close() }

// Subscriber receives ticks for a set of symbols. A subscriber that starts
// after data began flowing sees only future messages.
type Subscriber struct {
	client *goredis.Client

	// OnDecodeError is called when a payload fails to decode (optional).
	OnDecodeError func(err error)
}

// NewSubscriber connects to Redis and pings the server.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[bus] subscriber connected to %s", cfg.Addr)
	return &Subscriber{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Subscriber) Client() *goredis.Client { return s.client }

// Run subscribes to the given symbols' topics and pushes decoded ticks into
// tickCh. Delivery into tickCh is non-blocking: a slow consumer misses
// intervening ticks rather than stalling the receive loop.
// Blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, symbols []string, tickCh chan<- model.Tick) {
	topics := make([]string, len(symbols))
	for i, sym := range symbols {
		topics[i] = Topic(sym)
	}

	pubsub := s.client.Subscribe(ctx, topics...)
	defer pubsub.Close()

	log.Printf("[bus] subscribed to %d topics", len(topics))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var tick model.Tick
			if err := json.Unmarshal([]byte(msg.Payload), &tick); err != nil {
				log.Printf("[bus] decode error on %s: %v", msg.Channel, err)
				if s.OnDecodeError != nil {
					s.OnDecodeError(err)
				}
				continue
			}
			select {
			case tickCh <- tick:
			default:
				log.Printf("[bus] tickCh full, dropping tick %s", tick.Symbol)
			}
		}
	}
}

// Close releases the Redis connection.
func (s *Subscriber) Close() error { return s.client.Close() }
