package respbuilder_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/yusufsyaifudin/edumail/pkg/respbuilder"
)

func TestErrKind_Status(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, respbuilder.ErrValidation.Status())
	assert.Equal(t, http.StatusUnauthorized, respbuilder.ErrUnauthorized.Status())
	assert.Equal(t, http.StatusTooManyRequests, respbuilder.ErrRateLimited.Status())
	assert.Equal(t, http.StatusNotFound, respbuilder.ErrResourceNotFound.Status())
	assert.Equal(t, http.StatusInternalServerError, respbuilder.ErrUnhandled.Status())
	assert.Equal(t, http.StatusInternalServerError, respbuilder.ErrKind(99).Status())
}

func TestError(t *testing.T) {
	ctx := respbuilder.Inject(context.Background(), respbuilder.Tracer{AppTraceID: "trace-1"})

	t.Run("validation keeps debug", func(t *testing.T) {
		resp := respbuilder.Error(ctx, respbuilder.ErrValidation, errors.New("No prompt provided"))
		assert.Equal(t, "02", resp.Err.Code)
		assert.Equal(t, "No prompt provided", resp.Err.Debug)
		assert.Equal(t, "trace-1", resp.Err.TraceID)
	})

	t.Run("unhandled hides debug", func(t *testing.T) {
		resp := respbuilder.Error(ctx, respbuilder.ErrUnhandled, errors.New("open /etc/secret: permission denied"))
		assert.Equal(t, "01", resp.Err.Code)
		assert.Empty(t, resp.Err.Debug)
		assert.Equal(t, "Internal server error", resp.Error())
	})

	t.Run("unknown kind", func(t *testing.T) {
		resp := respbuilder.Error(ctx, respbuilder.ErrKind(99), errors.New("x"))
		assert.Equal(t, "XX", resp.Err.Code)
		assert.Empty(t, resp.Err.Debug)
	})
}

func TestWriteJSON(t *testing.T) {
	t.Run("success envelope", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(respbuilder.Inject(r.Context(), respbuilder.Tracer{AppTraceID: "abc"}))
		w := httptest.NewRecorder()

		respbuilder.WriteJSON(http.StatusOK, w, r, respbuilder.Success(r.Context(), map[string]int{"sent": 2}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abc", w.Header().Get("Tracer-ID"))
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var out struct {
			TraceID string         `json:"trace_id"`
			Data    map[string]int `json:"data"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, "abc", out.TraceID)
		assert.Equal(t, 2, out.Data["sent"])
	})

	t.Run("unencodable payload becomes 500", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		respbuilder.WriteJSON(http.StatusOK, w, r, map[string]interface{}{"c": make(chan int)})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), `"error_code":"01"`)
	})

	t.Run("write error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		respbuilder.WriteError(w, r, respbuilder.ErrRateLimited, errors.New("quota"))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "Gemini API quota exceeded")
	})
}
