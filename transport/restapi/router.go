package restapi

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/edumail/assets"
	"github.com/yusufsyaifudin/edumail/internal/svc/attemptsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/draftsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/mergesvc"
	"github.com/yusufsyaifudin/edumail/pkg/pubsub"
	"github.com/yusufsyaifudin/edumail/pkg/tracer"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/edumail/transport/restapi/handlerdraft"
	"github.com/yusufsyaifudin/edumail/transport/restapi/handlerevent"
	"github.com/yusufsyaifudin/edumail/transport/restapi/handlerlog"
	"github.com/yusufsyaifudin/edumail/transport/restapi/handlermail"
	"go.opentelemetry.io/otel"
)

type Config struct {
	DraftService   draftsvc.DraftGenerator `validate:"required"`
	MergeService   mergesvc.Service        `validate:"required"`
	AttemptService attemptsvc.Service      `validate:"required"`
	Subscriber     pubsub.ISubscriber      `validate:"required"`
	IDGen          handlermail.IDGen       `validate:"required"`
	UploadDir      string                  `validate:"required"`

	MaxUploadBytes int64         `validate:"min=0"`
	RequestTimeout time.Duration `validate:"min=0"`
	Heartbeat      time.Duration `validate:"min=0"`
}

type DefaultHTTP struct {
	router *chi.Mux
}

// HealthResp is written as is, without the response envelope.
type HealthResp struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// unbuffered tells whether the request must reach the handler with the original writer.
func unbuffered(r *http.Request) bool {
	p := strings.TrimSpace(path.Clean(r.URL.Path))
	switch {
	case p == "/", p == "/health", p == "/events":
		return true
	case strings.HasPrefix(p, "/download-csv/"), strings.HasPrefix(p, "/download-log/"):
		return true
	}

	return false
}

func NewHTTPTransport(cfg Config) (*DefaultHTTP, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("http transport cfg error: %w", err)
	}

	handlerDraft, err := handlerdraft.NewHandler(handlerdraft.HandlerConfig{
		DraftService: cfg.DraftService,
	})
	if err != nil {
		return nil, err
	}

	handlerMail, err := handlermail.NewHandler(handlermail.HandlerConfig{
		MergeService:   cfg.MergeService,
		IDGen:          cfg.IDGen,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}

	handlerLog, err := handlerlog.NewHandler(handlerlog.HandlerConfig{
		AttemptService: cfg.AttemptService,
	})
	if err != nil {
		return nil, err
	}

	handlerEvent, err := handlerevent.NewHandler(handlerevent.HandlerConfig{
		Subscriber: cfg.Subscriber,
		Heartbeat:  cfg.Heartbeat,
	})
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()

	router.Use(middleware.StripSlashes)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Tracer-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	router.Use(func(next http.Handler) http.Handler {
		return tracer.Middleware(tracer.MiddlewareConfig{
			TracerName:     "github.com/yusufsyaifudin/edumail",
			ServiceName:    assets.ServiceName,
			SkipFunc:       unbuffered,
			TracerProvider: otel.GetTracerProvider(),    // global tracer provider
			TextPropagator: otel.GetTextMapPropagator(), // use global text map propagator
		}, next)
	})

	// add trace id and also log request response
	router.Use(func(next http.Handler) http.Handler {
		return requestLogger(unbuffered, cfg.RequestTimeout, next)
	})

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(assets.Index)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthResp{
			Status:  "healthy",
			Service: assets.ServiceName,
		})
	})

	router.Post("/generate-email", handlerDraft.Generate())
	router.Post("/send-email", handlerMail.Send())
	router.Post("/bulk-send", handlerMail.BulkSend())

	router.Get("/download-csv/{date}", handlerLog.DownloadCSV())
	router.Get("/download-log/{status}/{date}", handlerLog.DownloadLog())
	router.Get("/email-counts", handlerLog.Counts())
	router.Get("/files", handlerLog.Files())
	router.Post("/clear-all", handlerLog.ClearAll())
	router.Delete("/clear-all", handlerLog.ClearAll())
	router.Get("/attempts", handlerLog.Attempts())

	router.Get("/events", handlerEvent.Stream())

	instance := &DefaultHTTP{
		router: router,
	}

	return instance, nil
}

// Server .
func (a *DefaultHTTP) Server() http.Handler {
	return a.router
}
