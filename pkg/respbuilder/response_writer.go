package respbuilder

import (
	"net/http"

	"github.com/segmentio/encoding/json"
)

func WriteJSON(httpStatus int, rw http.ResponseWriter, r *http.Request, data interface{}) {
	tracer := MustExtract(r.Context())

	payload, err := json.Marshal(data)
	if err != nil {
		reason := ReasonMap[ErrUnhandled]
		httpStatus = reason.HTTPStatus
		payload, _ = json.Marshal(HTTPError{
			Err: ErrorEntity{
				Code:    reason.Code,
				Message: reason.Message,
				TraceID: tracer.AppTraceID,
			},
		})
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Tracer-ID", tracer.AppTraceID)
	rw.WriteHeader(httpStatus)
	_, _ = rw.Write(append(payload, '\n'))
}

// WriteError writes the envelope built by Error with the status that belongs to kind.
func WriteError(rw http.ResponseWriter, r *http.Request, kind ErrKind, err error) {
	WriteJSON(kind.Status(), rw, r, Error(r.Context(), kind, err))
}
