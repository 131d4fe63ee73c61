package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
)

//publisher is the part of *redis.Client the notifier needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Timeout  time.Duration
}

//RedisPublisher publishes every detected action as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  publisher
	closer  func() error
	channel string
	timeout time.Duration
}

//NewRedisPublisher connects to Redis and checks the connection with a PING.
func NewRedisPublisher(opts RedisOptions) (*RedisPublisher, error) {
	if opts.Channel == "" {
		return nil, errors.New("NewRedisPublisher: missing channel")
	}

	log.Info(log.Fields{"addr": opts.Addr, "channel": opts.Channel}, "[notify.NewRedisPublisher] connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRedisPublisher: could not reach '%s': %w", opts.Addr, err)
	}

	p := newRedisPublisher(client, opts.Channel, opts.Timeout)
	p.closer = client.Close
	return p, nil
}

func newRedisPublisher(client publisher, channel string, timeout time.Duration) *RedisPublisher {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &RedisPublisher{client: client, channel: channel, timeout: timeout}
}

func (p *RedisPublisher) Notify(ev pose.Event) {
	if ev.Kind != pose.ActionDetected || ev.Action == nil {
		return
	}

	payload, err := json.Marshal(ev.Action)
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[notify.RedisPublisher] could not encode action")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		log.Error(log.Fields{"error": err.Error(), "channel": p.channel}, "[notify.RedisPublisher] publish failed")
		return
	}
	log.Debug(log.Fields{"channel": p.channel, "receivers": receivers, "id": ev.Action.ID}, "[notify.RedisPublisher] action published")
}

func (p *RedisPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
