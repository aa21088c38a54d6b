package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/pipeline"
)

// StreamConfig configures the Redis Streams consumer.
type StreamConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Stream     string        `mapstructure:"stream"`
	Group      string        `mapstructure:"group"`
	Consumer   string        `mapstructure:"consumer"`
	Count      int64         `mapstructure:"count"`
	Block      time.Duration `mapstructure:"block"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// MaxAge discards entries whose batch timestamp is older than this when
	// they are read or replayed. Zero disables the check.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// DefaultStreamConfig returns the consumer defaults. The consumer name
// defaults to the host name.
func DefaultStreamConfig() StreamConfig {
	host, _ := os.Hostname()
	if host == "" {
		host = "turbinewatch"
	}
	return StreamConfig{
		Addr:       "localhost:6379",
		Stream:     "turbinewatch:batches",
		Group:      "turbinewatch",
		Consumer:   host,
		Count:      16,
		Block:      5 * time.Second,
		MaxBackoff: 30 * time.Second,
		MaxAge:     time.Minute,
	}
}

// PayloadField is the stream entry field carrying the JSON batch.
const PayloadField = "data"

// Consumer reads batches from a Redis stream through a consumer group and
// submits them to the engine. Entries are acknowledged once submitted or
// found malformed or stale; entries rejected because the engine queue is
// full stay pending and are replayed after a backoff until they go stale.
type Consumer struct {
	cfg    StreamConfig
	client *redis.Client
	sub    Submitter
	logger *zap.Logger
	now    func() time.Time
}

// NewConsumer creates a consumer over an existing client.
func NewConsumer(cfg StreamConfig, client *redis.Client, sub Submitter, logger *zap.Logger) *Consumer {
	d := DefaultStreamConfig()
	if cfg.Stream == "" {
		cfg.Stream = d.Stream
	}
	if cfg.Group == "" {
		cfg.Group = d.Group
	}
	if cfg.Consumer == "" {
		cfg.Consumer = d.Consumer
	}
	if cfg.Count <= 0 {
		cfg.Count = d.Count
	}
	if cfg.Block <= 0 {
		cfg.Block = d.Block
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = d.MaxBackoff
	}
	return &Consumer{cfg: cfg, client: client, sub: sub, logger: logger, now: time.Now}
}

// NewClient opens a Redis client for cfg and checks it with PING.
func NewClient(ctx context.Context, cfg StreamConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Publish appends a batch to the stream. Collectors and tests use it.
func Publish(ctx context.Context, client *redis.Client, stream string, p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{PayloadField: string(data)},
	}).Result()
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Run consumes until ctx is cancelled. It starts by replaying entries still
// pending for this consumer, then reads new ones.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("stream consumer started",
		zap.String("component", "ingest"),
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer),
	)

	minBackoff := min(time.Second, c.cfg.MaxBackoff)
	backoff := minBackoff
	readID := "0"
	for ctx.Err() == nil {
		next, err := c.consume(ctx, readID)
		if err == nil {
			readID = next
			backoff = minBackoff
			continue
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("stream consume failed", zap.Error(err), zap.Duration("backoff", backoff))
		readID = "0"
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			backoff = min(backoff*2, c.cfg.MaxBackoff)
		}
	}
	c.logger.Info("stream consumer stopped", zap.String("component", "ingest"))
	return nil
}

var errBackpressure = errors.New("engine queue full")

// consume reads one page of entries starting at readID ("0" for this
// consumer's pending entries, ">" for new ones) and returns the ID to read
// from next.
func (c *Consumer) consume(ctx context.Context, readID string) (string, error) {
	args := &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, readID},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}
	if readID != ">" {
		args.Block = -1
	}
	streams, err := c.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return ">", nil
	}
	if err != nil {
		return readID, fmt.Errorf("read %s: %w", c.cfg.Stream, err)
	}

	n := 0
	for _, s := range streams {
		for _, msg := range s.Messages {
			n++
			if err := c.handle(msg); err != nil {
				return "0", err
			}
		}
	}
	if readID != ">" && n == 0 {
		return ">", nil
	}
	return readID, nil
}

func (c *Consumer) handle(msg redis.XMessage) error {
	log := c.logger.With(zap.String("message_id", msg.ID))

	raw, _ := msg.Values[PayloadField].(string)
	b, err := Decode(strings.NewReader(raw))
	if err != nil {
		log.Warn("malformed stream entry discarded", zap.Error(err))
		return c.ack(msg.ID)
	}
	if c.cfg.MaxAge > 0 {
		if age := c.now().Sub(b.Timestamp); age > c.cfg.MaxAge {
			log.Warn("stale stream entry discarded",
				zap.String("batch_id", b.ID),
				zap.Duration("age", age),
				zap.Duration("max_age", c.cfg.MaxAge),
			)
			return c.ack(msg.ID)
		}
	}
	if err := c.sub.Submit(b); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			return errBackpressure
		}
		if errors.Is(err, pipeline.ErrStopped) {
			return err
		}
		log.Warn("batch rejected", zap.String("batch_id", b.ID), zap.Error(err))
	}
	return c.ack(msg.ID)
}

func (c *Consumer) ack(id string) error {
	// Acks outlive the consumer's context so a submitted batch is never
	// replayed after shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}
