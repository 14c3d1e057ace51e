package restapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/satori/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/edumail/pkg/respbuilder"
	"github.com/yusufsyaifudin/edumail/pkg/tracer"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

func toSimpleMap(h http.Header) map[string]string {
	out := map[string]string{}
	for k, v := range h {
		out[k] = strings.Join(v, " ")
	}

	return out
}

func isJSON(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}

	return mediaType == "application/json"
}

// requestLogger injects the log tracer and response tracer into the request context and writes one access log
// per request. Only JSON bodies are captured, uploads are logged by their headers alone.
func requestLogger(skipFunc func(r *http.Request) bool, timeout time.Duration, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var globalErr error
		t1 := time.Now().UTC()
		ctx := r.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		traceID := uuid.NewV4().String()

		logTraceData, err := ylog.NewTracer(tracer.LogData{
			RemoteAddr: r.RemoteAddr,
			TraceID:    traceID,
		}, ylog.WithTag("tracer"))
		if err != nil {
			globalErr = multierr.Append(globalErr, fmt.Errorf("error prepare log tracer data: %w", err))
		}

		// Inject logger and response tracer at same time
		ctx = ylog.Inject(ctx, logTraceData)
		ctx = respbuilder.Inject(ctx, respbuilder.Tracer{
			RemoteAddr: r.RemoteAddr,
			AppTraceID: traceID,
		})

		// streams and downloads still need the trace id, but must not be buffered
		if skipFunc(r) {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		r = r.WithContext(ctx)

		var reqBodyObj interface{}
		if r.Body != nil && isJSON(r.Header) {
			reqBody, _err := io.ReadAll(r.Body)
			if _err != nil {
				globalErr = multierr.Append(globalErr, fmt.Errorf("error read request body: %w", _err))
			}

			if _err = r.Body.Close(); _err != nil {
				globalErr = multierr.Append(globalErr, fmt.Errorf("cannot close request body: %w", _err))
			}

			r.Body = io.NopCloser(bytes.NewReader(reqBody))

			if len(reqBody) > 0 {
				if _err = json.Unmarshal(reqBody, &reqBodyObj); _err != nil {
					reqBodyObj = string(reqBody)
				}
			}
		}

		// continue serve, and record the response
		rec := httptest.NewRecorder()
		next.ServeHTTP(rec, r)

		respBody := rec.Body.Bytes()

		var respBodyData interface{}
		var respBodyStr string
		if isJSON(rec.Header()) {
			if _err := json.Unmarshal(respBody, &respBodyData); _err != nil {
				globalErr = multierr.Append(globalErr, fmt.Errorf("error unmarshal response body: %w", _err))
				respBodyStr = string(respBody)
			}
		}

		for k, v := range rec.Header() {
			w.Header()[k] = v
		}

		w.WriteHeader(rec.Code)
		if _, err = bytes.NewReader(respBody).WriteTo(w); err != nil {
			globalErr = multierr.Append(globalErr, fmt.Errorf("error write response body: %w", err))
		}

		errStr := ""
		if globalErr != nil {
			errStr = globalErr.Error()
		}

		ylog.Access(ctx, ylog.AccessLogData{
			Path: r.RequestURI,
			Request: ylog.HTTPData{
				Header:     toSimpleMap(r.Header),
				DataObject: reqBodyObj,
			},
			Response: ylog.HTTPData{
				Header:     toSimpleMap(rec.Header()),
				DataObject: respBodyData,
				DataString: respBodyStr,
			},
			Error:       errStr,
			ElapsedTime: time.Since(t1).Milliseconds(),
		})
	}
}
