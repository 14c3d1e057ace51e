package respbuilder

import "net/http"

type ErrKind int64

const (
	ErrUnhandled ErrKind = iota + 1
	ErrValidation
	ErrDuplicateEntries
	ErrResourceNotFound
	ErrUnauthorized
	ErrRateLimited
	ErrDeliveryFailed
)

type Reason struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (r *Reason) Error() string {
	return r.Message
}

var ReasonMap = map[ErrKind]Reason{
	ErrUnhandled:        {Code: "01", Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	ErrValidation:       {Code: "02", Message: "error validation", HTTPStatus: http.StatusBadRequest},
	ErrDuplicateEntries: {Code: "03", Message: "duplicate entries", HTTPStatus: http.StatusConflict},
	ErrResourceNotFound: {Code: "04", Message: "resource not found", HTTPStatus: http.StatusNotFound},
	ErrUnauthorized:     {Code: "05", Message: "Invalid Gemini API key", HTTPStatus: http.StatusUnauthorized},
	ErrRateLimited:      {Code: "06", Message: "Gemini API quota exceeded", HTTPStatus: http.StatusTooManyRequests},
	ErrDeliveryFailed:   {Code: "07", Message: "Failed to send email. Check credentials or network.", HTTPStatus: http.StatusBadGateway},
}

// Status returns the HTTP status the kind is written with, unknown kinds are 500.
func (k ErrKind) Status() int {
	reason, ok := ReasonMap[k]
	if !ok {
		return http.StatusInternalServerError
	}

	return reason.HTTPStatus
}

// ErrorEntity contain code, message, debug (*if applicable) and trace id.
type ErrorEntity struct {
	Code    string `json:"error_code"`        // to handle by FE
	Message string `json:"error_description"` // to handle by FE (string version of the error code)
	Debug   string `json:"debug,omitempty"`   // technical error
	TraceID string `json:"trace_id"`
}

// HTTPError follow Facebook error response object:
// https://developers.facebook.com/docs/graph-api/using-graph-api/error-handling/
type HTTPError struct {
	Err ErrorEntity `json:"error"`
}

func (e HTTPError) Error() string {
	if e.Err.Debug == "" {
		return e.Err.Message
	}

	return e.Err.Message + ": " + e.Err.Debug
}

// HTTPSuccess success response always wrap in data key.
type HTTPSuccess struct {
	TraceID string      `json:"trace_id"`
	Data    interface{} `json:"data"`
}
