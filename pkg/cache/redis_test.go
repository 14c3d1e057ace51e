package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/yusufsyaifudin/edumail/pkg/cache"
)

func prepareMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
		DB:   1,
	})

	return s, client
}

func TestNewRedis(t *testing.T) {
	t.Run("bad dep", func(t *testing.T) {
		c, err := cache.NewRedis(cache.RedisConfig{})
		assert.Nil(t, c)
		assert.Error(t, err)
	})

	t.Run("ok", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NotNil(t, c)
		assert.NoError(t, err)
	})
}

func TestRedis_GetAs(t *testing.T) {
	type S struct {
		Value string
	}

	t.Run("no key found", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		var out S
		err = c.GetAs(context.Background(), "key", &out)
		assert.ErrorIs(t, err, cache.ErrKeyNotExist)
	})

	t.Run("redis error: closed connection", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		assert.NoError(t, redisConn.Close())

		var out S
		err = c.GetAs(context.Background(), "key", &out)
		assert.ErrorIs(t, err, redis.ErrClosed)
	})

	t.Run("success with prefix", func(t *testing.T) {
		s, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn, KeyPrefix: "edumail:"})
		assert.NoError(t, err)

		in := S{Value: "this is value"}
		err = c.SetExp(context.Background(), "key", in, time.Second)
		assert.NoError(t, err)

		s.Select(1)
		assert.True(t, s.Exists("edumail:key"))

		var out S
		err = c.GetAs(context.Background(), "key", &out)
		assert.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("expired", func(t *testing.T) {
		s, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		err = c.SetExp(context.Background(), "key", S{Value: "v"}, time.Second)
		assert.NoError(t, err)

		s.FastForward(2 * time.Second)

		var out S
		assert.ErrorIs(t, c.GetAs(context.Background(), "key", &out), cache.ErrKeyNotExist)
	})
}

func TestRedis_SetExp(t *testing.T) {
	t.Run("error marshal data", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		in := map[string]interface{}{
			"key": make(chan int, 1),
		}

		err = c.SetExp(context.Background(), "key", in, time.Second)
		var eType *json.UnsupportedTypeError
		assert.ErrorAs(t, err, &eType)
	})

	t.Run("negative expiry stores without ttl", func(t *testing.T) {
		s, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		err = c.SetExp(context.Background(), "key", "v", -1)
		assert.NoError(t, err)

		s.Select(1)
		assert.Equal(t, time.Duration(0), s.TTL("key"))
	})
}

func TestRedis_Delete(t *testing.T) {
	t.Run("success: not exist key", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		assert.NoError(t, c.Delete(context.Background(), "key"))
	})

	t.Run("redis error: closed connection", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		assert.NoError(t, redisConn.Close())

		err = c.Delete(context.Background(), "key")
		assert.ErrorIs(t, err, redis.ErrClosed)
	})

	t.Run("success", func(t *testing.T) {
		_, redisConn := prepareMiniRedis(t)
		c, err := cache.NewRedis(cache.RedisConfig{DB: redisConn})
		assert.NoError(t, err)

		assert.NoError(t, c.SetExp(context.Background(), "key", "v", time.Second))
		assert.NoError(t, c.Delete(context.Background(), "key"))

		var out string
		assert.ErrorIs(t, c.GetAs(context.Background(), "key", &out), cache.ErrKeyNotExist)
	})
}
