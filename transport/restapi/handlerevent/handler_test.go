package handlerevent_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/edumail/pkg/pubsub"
	"github.com/yusufsyaifudin/edumail/transport/restapi/handlerevent"
)

func TestNewHandler(t *testing.T) {
	h, err := handlerevent.NewHandler(handlerevent.HandlerConfig{})
	assert.Error(t, err)
	assert.Nil(t, h)
}

func TestHandler_Stream(t *testing.T) {
	broker := pubsub.NewMemory(10)
	h, err := handlerevent.NewHandler(handlerevent.HandlerConfig{Subscriber: broker, Heartbeat: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Stream()(w, r)
	}()

	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, broker.Publish(context.Background(), &pubsub.Message{Body: []byte(`{"email":"alice@example.com","status":"success"}`)}))

	// the heartbeat proves the stream stays open after the event
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after the client left")
	}

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, ": connected\n\n"))
	assert.Contains(t, body, "event: attempt\ndata: {\"email\":\"alice@example.com\",\"status\":\"success\"}\n\n")
	assert.Contains(t, body, ": ping\n\n")
	assert.Equal(t, 0, broker.Subscribers())
}
