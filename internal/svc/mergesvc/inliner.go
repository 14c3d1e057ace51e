package mergesvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vanng822/go-premailer/premailer"
	"github.com/yusufsyaifudin/edumail/pkg/cache"
	"github.com/yusufsyaifudin/ylog"
)

// Inliner moves <style> rules into style attributes so mail clients render them.
type Inliner interface {
	Inline(ctx context.Context, html string) (string, error)
}

type PremailerConfig struct {
	// Cache is optional, results are keyed by the template hash.
	Cache cache.Cache
	TTL   time.Duration
}

type Premailer struct {
	cache cache.Cache
	ttl   time.Duration
}

var _ Inliner = (*Premailer)(nil)

func NewPremailer(cfg PremailerConfig) *Premailer {
	return &Premailer{
		cache: cfg.Cache,
		ttl:   cfg.TTL,
	}
}

func (p *Premailer) Inline(ctx context.Context, html string) (string, error) {
	sum := sha256.Sum256([]byte(html))
	key := "inline:" + hex.EncodeToString(sum[:])

	if p.cache != nil {
		var cached string
		err := p.cache.GetAs(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}

		if !errors.Is(err, cache.ErrKeyNotExist) {
			ylog.Error(ctx, "inline cache read failed", ylog.KV("error", err))
		}
	}

	pm, err := premailer.NewPremailerFromString(html, premailer.NewOptions())
	if err != nil {
		return "", fmt.Errorf("premailer parse error: %w", err)
	}

	inlined, err := pm.Transform()
	if err != nil {
		return "", fmt.Errorf("premailer transform error: %w", err)
	}

	if p.cache != nil {
		if err = p.cache.SetExp(ctx, key, inlined, p.ttl); err != nil {
			ylog.Error(ctx, "inline cache write failed", ylog.KV("error", err))
		}
	}

	return inlined, nil
}
