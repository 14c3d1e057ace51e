package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

// RedisConnMaker opens every configured redis resource once and hands them out by label.
type RedisConnMaker struct {
	ctx     context.Context
	conf    ConfigRedisResources
	clients map[string]redis.UniversalClient
	closer  []Closer
}

func NewRedisConnMaker(ctx context.Context, conf ConfigRedisResources) (*RedisConnMaker, error) {
	instance := &RedisConnMaker{
		ctx:     ctx,
		conf:    conf,
		clients: map[string]redis.UniversalClient{},
		closer:  make([]Closer, 0),
	}

	err := instance.connect()
	if err != nil {
		// close previous opened connection if error happen
		if _err := instance.Close(); _err != nil {
			err = fmt.Errorf("close redis error: %w: %s", err, _err)
		}

		return nil, err
	}

	return instance, nil
}

func (i *RedisConnMaker) connect() error {
	ctx := i.ctx

	for key, connInfo := range i.conf {
		key = strings.TrimSpace(strings.ToLower(key))
		if err := validator.Var(key, "required,alphanum"); err != nil {
			err = fmt.Errorf("error connecting to redis key '%s': %w", key, err)
			return err
		}

		if err := validator.Validate(connInfo); err != nil {
			return fmt.Errorf("redis %s config error: %w", key, err)
		}

		var redisClient redis.UniversalClient
		switch connInfo.Mode {
		case "single":
			redisClient = redis.NewClient(&redis.Options{
				Addr:     connInfo.Address[0],
				Username: connInfo.Username,
				Password: connInfo.Password,
				DB:       connInfo.DB,
			})

		case "sentinel":
			redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
				SentinelAddrs: connInfo.Address,
				Username:      connInfo.Username,
				Password:      connInfo.Password,
				DB:            connInfo.DB,
				MasterName:    connInfo.MasterName,
			})

		case "cluster":
			// cluster mode is not support DB selection
			redisClient = redis.NewClusterClient(&redis.ClusterOptions{
				Addrs:    connInfo.Address,
				Username: connInfo.Username,
				Password: connInfo.Password,
			})

		default:
			return fmt.Errorf("unknown redis mode: %s", connInfo.Mode)
		}

		i.clients[key] = redisClient
		i.closer = append(i.closer, NewNamedCloser("redis "+key, redisClient)) // register the closer

		err := redisClient.Ping(ctx).Err()
		if err != nil {
			err = fmt.Errorf("error ping redis %s: %w", key, err)
			return err
		}

		ylog.Debug(ctx, fmt.Sprintf("redis: %s connected in %s mode", key, connInfo.Mode))
	}

	return nil
}

// Get returns the client of any topology registered under key.
func (i *RedisConnMaker) Get(key string) (redis.UniversalClient, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	v, ok := i.clients[key]
	if !ok {
		return nil, fmt.Errorf("key %s is not found in any redis topology", key)
	}

	return v, nil
}

func (i *RedisConnMaker) Close() error {
	ctx := i.ctx

	ylog.Debug(ctx, "redis: trying to close")

	var err error
	for _, closer := range i.closer {
		if closer == nil {
			continue
		}

		if e := closer.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", closer.Name(), e))
		} else {
			ylog.Debug(ctx, fmt.Sprintf("redis: %s success to close", closer.Name()))
		}
	}

	if err != nil {
		ylog.Error(ctx, "redis: some error occurred when closing dep", ylog.KV("error", err))
	}

	return err
}
