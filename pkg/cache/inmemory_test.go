package cache_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yusufsyaifudin/edumail/pkg/cache"
)

func TestNewInMemory(t *testing.T) {
	t.Run("default size", func(t *testing.T) {
		c, err := cache.NewInMemory(0)
		assert.NotNil(t, c)
		assert.NoError(t, err)
	})
}

func TestInMemory_GetAs(t *testing.T) {
	type S struct {
		Value string
	}

	t.Run("no key found", func(t *testing.T) {
		c, err := cache.NewInMemory(0)
		assert.NoError(t, err)

		var out S
		err = c.GetAs(context.Background(), "key", &out)
		assert.ErrorIs(t, err, cache.ErrKeyNotExist)
	})

	t.Run("success", func(t *testing.T) {
		c, err := cache.NewInMemory(0)
		assert.NoError(t, err)

		in := S{Value: "this is value"}
		err = c.SetExp(context.Background(), "key", in, -1)
		assert.NoError(t, err)

		var out S
		err = c.GetAs(context.Background(), "key", &out)
		assert.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("value bigger than 64KB", func(t *testing.T) {
		c, err := cache.NewInMemory(0)
		assert.NoError(t, err)

		html := "<p>" + strings.Repeat("x", 200*1024) + "</p>"
		err = c.SetExp(context.Background(), "template", html, 0)
		assert.NoError(t, err)

		var out string
		err = c.GetAs(context.Background(), "template", &out)
		assert.NoError(t, err)
		assert.Equal(t, html, out)
	})
}

func TestInMemory_SetExp(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		c, err := cache.NewInMemory(0)
		assert.NoError(t, err)

		in := map[string]interface{}{
			"key": make(chan int, 1),
		}

		err = c.SetExp(context.Background(), "key", in, -1)
		assert.Error(t, err)

		var eType *json.UnsupportedTypeError
		assert.ErrorAs(t, err, &eType)
	})
}

func TestInMemory_Delete(t *testing.T) {
	c, err := cache.NewInMemory(0)
	assert.NoError(t, err)

	err = c.SetExp(context.Background(), "key", "value", 0)
	assert.NoError(t, err)

	err = c.Delete(context.Background(), "key")
	assert.NoError(t, err)

	var out string
	assert.ErrorIs(t, c.GetAs(context.Background(), "key", &out), cache.ErrKeyNotExist)
}
