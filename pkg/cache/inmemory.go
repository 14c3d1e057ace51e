package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/fastcache"
)

// entry wraps every value so expiry can be enforced on read, fastcache itself never expires keys.
type entry struct {
	ExpireAt int64           `json:"exp,omitempty"` // unix nano, 0 means no expiry
	Value    json.RawMessage `json:"val"`
}

type InMemory struct {
	DB  *fastcache.Cache
	now func() time.Time
}

var _ Cache = (*InMemory)(nil)

// NewInMemory creates a fastcache backed store capped at maxBytes (32MB when maxBytes < 1).
func NewInMemory(maxBytes int) (*InMemory, error) {
	if maxBytes < 1 {
		maxBytes = 32 * 1048576
	}

	return &InMemory{
		DB:  fastcache.New(maxBytes),
		now: time.Now,
	}, nil
}

func (i *InMemory) GetAs(_ context.Context, key string, out interface{}) error {
	raw := i.DB.GetBig(nil, []byte(key))
	if raw == nil {
		return ErrKeyNotExist
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("corrupted cache entry %s: %w", key, err)
	}

	if e.ExpireAt > 0 && i.now().UnixNano() >= e.ExpireAt {
		i.DB.Del([]byte(key))
		return ErrKeyNotExist
	}

	return json.Unmarshal(e.Value, out)
}

func (i *InMemory) SetExp(_ context.Context, key string, inValue interface{}, expireDur time.Duration) error {
	val, err := json.Marshal(inValue)
	if err != nil {
		err = fmt.Errorf("cannot marshal json value: %w", err)
		return err
	}

	e := entry{Value: val}
	if expireDur > 0 {
		e.ExpireAt = i.now().Add(expireDur).UnixNano()
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cannot marshal cache entry: %w", err)
	}

	// SetBig because an inlined email template easily crosses the 64KB limit of Set.
	i.DB.SetBig([]byte(key), raw)
	return nil
}

func (i *InMemory) Delete(_ context.Context, key string) error {
	i.DB.Del([]byte(key))
	return nil
}
