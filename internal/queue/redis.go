package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPublisher struct {
	client     *redis.Client
	streamName string
	maxLen     int64
	ensureMu   sync.Mutex
	ensured    bool
}

// NewRedisPublisher connects to Redis and publishes to streamName, trimming
// the stream to roughly maxLen entries. A maxLen of zero disables trimming.
func NewRedisPublisher(addr, streamName string, maxLen int64) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisPublisher{
		client:     client,
		streamName: streamName,
		maxLen:     maxLen,
	}, nil
}

func (p *RedisPublisher) PublishTabEvent(ctx context.Context, message TabEventMessage) error {
	if err := p.ensureStream(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.streamName,
		Values: map[string]any{
			"type":    string(message.Event.Type),
			"tab_id":  strconv.Itoa(message.TabID),
			"payload": string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish tab event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) StreamStats(ctx context.Context) (StreamStats, error) {
	depth, err := p.client.XLen(ctx, p.streamName).Result()
	if err != nil {
		return StreamStats{}, fmt.Errorf("stream length: %w", err)
	}
	return StreamStats{Stream: p.streamName, Depth: depth}, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// ensureStream refuses to publish when the stream key holds another type.
func (p *RedisPublisher) ensureStream(ctx context.Context) error {
	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()
	if p.ensured {
		return nil
	}

	keyType, err := p.client.Type(ctx, p.streamName).Result()
	if err != nil {
		return fmt.Errorf("ensure event stream: %w", err)
	}

	switch keyType {
	case "none", "stream":
		p.ensured = true
		return nil
	default:
		return fmt.Errorf("ensure event stream: unsupported redis key type=%s stream=%s", keyType, p.streamName)
	}
}
