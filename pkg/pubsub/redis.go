package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
)

type RedisConfig struct {
	RedisClient redis.UniversalClient `validate:"required"`
	Channel     string                `validate:"required"`
}

// Redis publishes on a redis channel, so every API replica can stream the events of the others.
type Redis struct {
	conf     RedisConfig
	done     chan struct{}
	doneOnce sync.Once
}

var _ PubSub = (*Redis)(nil)

func NewRedis(conf RedisConfig) (*Redis, error) {
	err := validator.Validate(conf)
	if err != nil {
		return nil, fmt.Errorf("pubsub redis config: %w", err)
	}

	return &Redis{
		conf: conf,
		done: make(chan struct{}),
	}, nil
}

func (r *Redis) Publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return nil
	}

	select {
	case <-r.done:
		return ErrShutdown
	default:
	}

	err := r.conf.RedisClient.Publish(ctx, r.conf.Channel, msg.Body).Err()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.conf.Channel, err)
	}

	return nil
}

func (r *Redis) Subscribe(ctx context.Context, handler SubscribeHandler) (err error) {
	sub := r.conf.RedisClient.Subscribe(ctx, r.conf.Channel)
	defer func() {
		if _err := sub.Close(); _err != nil && err == nil {
			err = fmt.Errorf("close redis subscription: %w", _err)
		}
	}()

	// wait for the subscribe confirmation, messages published before it are not delivered
	if _, err = sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe to %s: %w", r.conf.Channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-r.done:
			return nil

		case redisMsg, ok := <-ch:
			if !ok {
				return nil
			}

			msg := &Message{
				LoggableID: redisMsg.Channel,
				Body:       []byte(redisMsg.Payload),
			}

			if err = handler(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// Shutdown stops running subscriptions. The redis client is owned by the caller and stays open.
func (r *Redis) Shutdown(_ context.Context) error {
	r.doneOnce.Do(func() { close(r.done) })
	return nil
}
