package respbuilder

import (
	"context"
)

// Error builds the error envelope for kind.
// The debug text is left out for ErrUnhandled so internal failures never reach the caller.
func Error(ctx context.Context, reasonKind ErrKind, err error) HTTPError {
	stuff := MustExtract(ctx)

	reason, ok := ReasonMap[reasonKind]
	if !ok {
		return HTTPError{
			Err: ErrorEntity{
				Code:    "XX",
				Message: "unknown error kind",
				TraceID: stuff.AppTraceID,
			},
		}
	}

	errMsg := ""
	if err != nil && reasonKind != ErrUnhandled {
		errMsg = err.Error()
	}

	return HTTPError{
		Err: ErrorEntity{
			Code:    reason.Code,
			Message: reason.Message,
			Debug:   errMsg,
			TraceID: stuff.AppTraceID,
		},
	}
}

func Success(ctx context.Context, data interface{}) HTTPSuccess {
	stuff := MustExtract(ctx)

	return HTTPSuccess{
		TraceID: stuff.AppTraceID,
		Data:    data,
	}
}
