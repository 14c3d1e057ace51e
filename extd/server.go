package extd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/satori/uuid"
	"github.com/yusufsyaifudin/edumail/assets"
	"github.com/yusufsyaifudin/edumail/container"
	"github.com/yusufsyaifudin/edumail/pkg/tracer"
	"github.com/yusufsyaifudin/edumail/transport/restapi"
	"github.com/yusufsyaifudin/ylog"
	jaegerPropagator "go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/contrib/propagators/ot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// RunServer wires the container into the HTTP transport and blocks until SIGINT, SIGTERM or a server error.
func RunServer(ctx context.Context, cfg container.Config) (err error) {
	if ctx == nil {
		ctx = context.TODO()
	}

	ctx = SetupLog(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// register ot propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		&ot.OT{},
		&jaegerPropagator.Jaeger{},
	))

	if cfg.Tracing.JaegerEndpoint != "" {
		exp, _err := jaeger.New(
			jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Tracing.JaegerEndpoint)),
		)
		if _err != nil {
			ylog.Error(ctx, "cannot setup jaeger exporter", ylog.KV("error", _err))
			return _err
		}

		tp := tracer.InitTraceProvider(assets.ServiceName, cfg.Tracing.Environment, exp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if _err := tp.Shutdown(shutdownCtx); _err != nil {
				ylog.Error(ctx, "tracer provider shutdown failed", ylog.KV("error", _err))
			}
		}()
	}

	// ** setup repositories
	ylog.Info(ctx, "container preparation: starting")
	repositories, err := container.SetupRepositories(cfg.DatabaseResources)
	defer func() {
		ylog.Info(ctx, "closing repositories: starting")
		if repositories == nil {
			ylog.Info(ctx, "closing repositories: no need to close")
			return
		}

		if _err := repositories.Close(); _err != nil {
			ylog.Error(ctx, "closing repositories: failed", ylog.KV("error", _err))
		}

		ylog.Info(ctx, "closing repositories: done")
	}()

	if err != nil {
		ylog.Error(ctx, "container preparation: failed", ylog.KV("error", err))
		return
	}

	redisConn, err := container.NewRedisConnMaker(ctx, cfg.RedisResources)
	if err != nil {
		ylog.Error(ctx, "redis preparation: failed", ylog.KV("error", err))
		return
	}

	defer func() {
		if _err := redisConn.Close(); _err != nil {
			ylog.Error(ctx, "closing redis: failed", ylog.KV("error", _err))
		}
	}()

	ylog.Info(ctx, "container preparation: done")

	// ** START SERVICES using configured repositories
	ylog.Info(ctx, "services preparation: starting")
	services, err := container.SetupServices(ctx, cfg, repositories, redisConn)
	if err != nil {
		ylog.Error(ctx, "service preparation: failed", ylog.KV("error", err))
		return
	}

	defer func() {
		if _err := services.Close(); _err != nil {
			ylog.Error(ctx, "closing services: failed", ylog.KV("error", _err))
		}
	}()

	// ** HTTP TRANSPORT
	ylog.Info(ctx, "transport preparation: starting")
	server, err := restapi.NewHTTPTransport(restapi.Config{
		DraftService:   services.Draft(),
		MergeService:   services.Merge(),
		AttemptService: services.Attempt(),
		Subscriber:     services.Broker(),
		IDGen:          services.UIDGen(),
		UploadDir:      cfg.Transport.HTTP.UploadDir,
		MaxUploadBytes: cfg.Transport.HTTP.MaxUploadBytes,
		RequestTimeout: cfg.Transport.HTTP.RequestTimeout,
		Heartbeat:      cfg.Events.Heartbeat,
	})
	if err != nil {
		ylog.Error(ctx, "http transport: failed", ylog.KV("error", err))
		return
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Transport.HTTP.Port),
		Handler:           h2c.NewHandler(server.Server(), &http2.Server{}), // HTTP/2 Cleartext handler
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ylog.Info(ctx, fmt.Sprintf("http transport: running on port %d", cfg.Transport.HTTP.Port))
		if _err := httpServer.ListenAndServe(); _err != nil && !errors.Is(_err, http.ErrServerClosed) {
			return fmt.Errorf("http transport: %w", _err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		ylog.Info(ctx, "system: exiting...")

		// end the event streams first, Shutdown waits for every open connection
		if _err := services.Broker().Shutdown(context.Background()); _err != nil {
			ylog.Error(ctx, "event broker: shutdown failed", ylog.KV("error", _err))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if _err := httpServer.Shutdown(shutdownCtx); _err != nil {
			return fmt.Errorf("http transport shutdown: %w", _err)
		}

		return nil
	})

	ylog.Info(ctx, "system: up and running...")

	if err = g.Wait(); err != nil {
		ylog.Error(ctx, "system: stopped with error", ylog.KV("error", err))
		return
	}

	ylog.Info(ctx, "system: stopped")
	return nil
}

// SetupLog registers the zap backed global logger and returns ctx carrying the system tracer.
func SetupLog(ctx context.Context) context.Context {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			MessageKey:     "msg",
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			LineEnding:     zapcore.DefaultLineEnding,
			LevelKey:       "level",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
		}),
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), // pipe to multiple writer
		zapcore.DebugLevel,
	)

	zapLog := zap.New(core)

	propagateData := tracer.LogData{
		RemoteAddr: "system",
		TraceID:    uuid.NewV4().String(),
	}

	traceLog, err := ylog.NewTracer(propagateData, ylog.WithTag("tracer"))
	if err != nil {
		log.Fatalf("error prepare tracer system data: %s", err)
		return ctx
	}

	// inject context
	ctx = ylog.Inject(ctx, traceLog)

	// ** set global logger
	ylog.SetGlobalLogger(ylog.NewZap(zapLog))

	return ctx
}
