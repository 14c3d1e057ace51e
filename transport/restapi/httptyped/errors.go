// Package httptyped maps service errors onto the HTTP error envelope.
package httptyped

import (
	"errors"
	"net/http"

	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/respbuilder"
	"github.com/yusufsyaifudin/ylog"
)

// ErrKind picks the response kind for an error returned by a service.
func ErrKind(err error) respbuilder.ErrKind {
	switch {
	case errors.Is(err, svcerr.ErrValidation):
		return respbuilder.ErrValidation
	case errors.Is(err, svcerr.ErrAuth):
		return respbuilder.ErrUnauthorized
	case errors.Is(err, svcerr.ErrRateLimit):
		return respbuilder.ErrRateLimited
	case errors.Is(err, svcerr.ErrDelivery):
		return respbuilder.ErrDeliveryFailed
	case errors.Is(err, svcerr.ErrNotFound):
		return respbuilder.ErrResourceNotFound
	default:
		return respbuilder.ErrUnhandled
	}
}

// WriteError logs unhandled errors, which are never shown to the caller, and writes the envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ErrKind(err)
	if kind == respbuilder.ErrUnhandled {
		ylog.Error(r.Context(), "unhandled error", ylog.KV("error", err))
	}

	respbuilder.WriteError(w, r, kind, errors.New(svcerr.Detail(err)))
}

// WriteValidation is a shortcut for request level problems found before reaching a service.
func WriteValidation(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, svcerr.Wrap(svcerr.ErrValidation, msg))
}
