package container

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/sonyflake"
	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
	"github.com/yusufsyaifudin/edumail/internal/svc/attemptsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/draftsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/mergesvc"
	"github.com/yusufsyaifudin/edumail/pkg/cache"
	"github.com/yusufsyaifudin/edumail/pkg/gemini"
	"github.com/yusufsyaifudin/edumail/pkg/mailclient"
	"github.com/yusufsyaifudin/edumail/pkg/pubsub"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

// IDGen is satisfied by *sonyflake.Sonyflake.
type IDGen interface {
	NextID() (uint64, error)
}

type Services interface {
	UIDGen() IDGen
	Draft() draftsvc.DraftGenerator
	Merge() mergesvc.Service
	Attempt() attemptsvc.Service
	Broker() pubsub.PubSub
}

type ServicesImpl struct {
	uidGen  IDGen
	draft   draftsvc.DraftGenerator
	merge   mergesvc.Service
	attempt attemptsvc.Service
	broker  pubsub.PubSub

	closer []Closer
}

var _ Services = (*ServicesImpl)(nil)

// SetupServices builds every service from the config. Redis is only asked for when a section uses it.
// The returned value must be closed after the transport stops.
func SetupServices(ctx context.Context, cfg Config, repos Repositories, redisConn *RedisConnMaker) (svc *ServicesImpl, err error) {
	if repos == nil {
		err = fmt.Errorf("nil repositories on services preparation")
		return
	}

	svc = &ServicesImpl{closer: make([]Closer, 0)}
	defer func() {
		if err == nil {
			return
		}

		if _err := svc.Close(); _err != nil {
			err = multierr.Append(err, _err)
		}
		svc = nil
	}()

	uidGen := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	if uidGen == nil {
		err = fmt.Errorf("uid generator is nil")
		return
	}

	svc.uidGen = uidGen

	// ** live event broker
	svc.broker, err = newBroker(cfg.Events, redisConn)
	if err != nil {
		err = fmt.Errorf("services cannot prepare event broker: %w", err)
		return
	}

	svc.closer = append(svc.closer, NewNamedCloser("event broker", closerFunc(func() error {
		return svc.broker.Shutdown(context.Background())
	})))

	// ** attempt history mirror, optional
	var attemptRepo attemptrepo.Repo
	if cfg.AttemptStore.DBLabel != "" {
		attemptRepo, err = repos.AttemptRepo(cfg.AttemptStore.DBLabel, uidGen)
		if err != nil {
			err = fmt.Errorf("services cannot get attempt repo: %w", err)
			return
		}
	}

	attemptSvc, err := attemptsvc.New(attemptsvc.Config{
		CSVDir:    cfg.Logs.CSVDir,
		TextDir:   cfg.Logs.TextDir,
		Location:  cfg.Location(),
		Publisher: svc.broker,
		Repo:      attemptRepo,
	})
	if err != nil {
		err = fmt.Errorf("services cannot prepare attempt service: %w", err)
		return
	}

	svc.attempt = attemptSvc

	// ** mail merge
	transport, err := newMailTransport(ctx, cfg.Mail)
	if err != nil {
		err = fmt.Errorf("services cannot prepare mail transport: %w", err)
		return
	}

	inlineCache, err := newCache(cfg.Cache, redisConn)
	if err != nil {
		err = fmt.Errorf("services cannot prepare cache: %w", err)
		return
	}

	mergeSvc, err := mergesvc.New(mergesvc.Config{
		Transport: transport,
		Attempts:  attemptSvc,
		Inliner: mergesvc.NewPremailer(mergesvc.PremailerConfig{
			Cache: inlineCache,
			TTL:   cfg.Cache.TTL,
		}),
		Sender:      cfg.Mail.Sender,
		MaxParallel: cfg.Merge.MaxParallel,
		MaxQueue:    cfg.Merge.MaxQueue,
	})
	if err != nil {
		err = fmt.Errorf("services cannot prepare merge service: %w", err)
		return
	}

	svc.merge = mergeSvc

	// ** draft generator
	var model draftsvc.TextModel = gemini.Disabled{}
	if cfg.Gemini.APIKey == "" {
		ylog.Info(ctx, "GEMINI_API_KEY is not set, email generation will answer with an auth error")
	} else {
		client, _err := gemini.New(ctx, gemini.Config{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		})
		if _err != nil {
			err = fmt.Errorf("services cannot prepare gemini client: %w", _err)
			return
		}

		svc.closer = append(svc.closer, NewNamedCloser("gemini", client))
		model = client
	}

	svc.draft, err = draftsvc.New(draftsvc.Config{Model: model})
	if err != nil {
		err = fmt.Errorf("services cannot prepare draft service: %w", err)
		return
	}

	ylog.Info(ctx, "services ready",
		ylog.KV("mail_transport", transport.Name()),
		ylog.KV("events", cfg.Events.Type),
		ylog.KV("cache", cfg.Cache.Type),
		ylog.KV("history", attemptRepo != nil),
	)

	return svc, nil
}

func newBroker(conf ConfigEvents, redisConn *RedisConnMaker) (pubsub.PubSub, error) {
	switch conf.Type {
	case "redis":
		if redisConn == nil {
			return nil, fmt.Errorf("events type redis needs a redis connection")
		}

		client, err := redisConn.Get(conf.RedisLabel)
		if err != nil {
			return nil, err
		}

		return pubsub.NewRedis(pubsub.RedisConfig{
			RedisClient: client,
			Channel:     conf.Channel,
		})

	case "memory", "":
		return pubsub.NewMemory(conf.BufferSize), nil

	default:
		return nil, fmt.Errorf("pubsub with type %s is unknown", conf.Type)
	}
}

func newCache(conf ConfigCache, redisConn *RedisConnMaker) (cache.Cache, error) {
	switch conf.Type {
	case "redis":
		if redisConn == nil {
			return nil, fmt.Errorf("cache type redis needs a redis connection")
		}

		client, err := redisConn.Get(conf.RedisLabel)
		if err != nil {
			return nil, err
		}

		return cache.NewRedis(cache.RedisConfig{
			DB:        client,
			KeyPrefix: conf.KeyPrefix,
		})

	case "memory", "":
		return cache.NewInMemory(conf.MaxBytes)

	default:
		return nil, fmt.Errorf("cache with type %s is unknown", conf.Type)
	}
}

func newMailTransport(ctx context.Context, conf ConfigMail) (mailclient.MailTransport, error) {
	switch conf.Transport {
	case "smtp":
		return mailclient.NewSMTP(mailclient.SMTPConfig{
			Host:     conf.SMTP.Host,
			Port:     conf.SMTP.Port,
			Username: conf.SMTP.Username,
			Password: conf.SMTP.Password,
			StartTLS: !conf.SMTP.DisableStartTLS,
			Timeout:  conf.SMTP.Timeout,
		})

	case "ses":
		return mailclient.NewSES(ctx, mailclient.SESConfig{
			Region:          conf.SES.Region,
			AccessKeyID:     conf.SES.AccessKeyID,
			SecretAccessKey: conf.SES.SecretAccessKey,
		})

	case "log":
		return mailclient.NewLog(), nil

	default:
		return nil, fmt.Errorf("mail transport %s is unknown", conf.Transport)
	}
}

func (s *ServicesImpl) UIDGen() IDGen {
	return s.uidGen
}

func (s *ServicesImpl) Draft() draftsvc.DraftGenerator {
	return s.draft
}

func (s *ServicesImpl) Merge() mergesvc.Service {
	return s.merge
}

func (s *ServicesImpl) Attempt() attemptsvc.Service {
	return s.attempt
}

func (s *ServicesImpl) Broker() pubsub.PubSub {
	return s.broker
}

// Close releases the service clients in reverse order of creation.
func (s *ServicesImpl) Close() error {
	if s == nil {
		return nil
	}

	var err error
	for i := len(s.closer) - 1; i >= 0; i-- {
		if _err := s.closer[i].Close(); _err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.closer[i].Name(), _err))
		}
	}

	s.closer = nil
	return err
}
