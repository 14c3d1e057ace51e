package handlerevent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/yusufsyaifudin/edumail/pkg/pubsub"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/edumail/transport/restapi/httptyped"
	"github.com/yusufsyaifudin/ylog"
)

type HandlerConfig struct {
	Subscriber pubsub.ISubscriber `validate:"required"`

	// Heartbeat is the interval between keep-alive comments, zero disables it.
	Heartbeat time.Duration `validate:"-"`
}

type Handler struct {
	Config HandlerConfig
}

func NewHandler(conf HandlerConfig) (*Handler, error) {
	err := validator.Validate(conf)
	if err != nil {
		return nil, err
	}

	return &Handler{Config: conf}, nil
}

// Stream pushes every recorded attempt as a Server-Sent Event until the client goes away.
// Path     : GET /events
// Response : text/event-stream, event "attempt" with attemptsvc.Event as data
func (h *Handler) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		flusher, ok := w.(http.Flusher)
		if !ok {
			httptyped.WriteError(w, r, fmt.Errorf("response writer does not support streaming"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		// writes happen from the subscriber callback and the heartbeat, one at a time
		writes := make(chan []byte)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for payload := range writes {
				if _, err := w.Write(payload); err != nil {
					cancel()
					continue
				}
				flusher.Flush()
			}
		}()

		send := func(payload []byte) bool {
			select {
			case writes <- payload:
				return true
			case <-ctx.Done():
				return false
			}
		}

		send([]byte(": connected\n\n"))

		heartbeat := sync.WaitGroup{}
		if h.Config.Heartbeat > 0 {
			heartbeat.Add(1)
			go func() {
				defer heartbeat.Done()

				ticker := time.NewTicker(h.Config.Heartbeat)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						send([]byte(": ping\n\n"))
					}
				}
			}()
		}

		err := h.Config.Subscriber.Subscribe(ctx, func(_ context.Context, msg *pubsub.Message) error {
			if !send([]byte(fmt.Sprintf("event: attempt\ndata: %s\n\n", msg.Body))) {
				return ctx.Err()
			}
			return nil
		})

		cancel()
		heartbeat.Wait()
		close(writes)
		<-done

		if err != nil && ctx.Err() == nil {
			ylog.Error(r.Context(), "event stream ended", ylog.KV("error", err))
		}
	}
}
