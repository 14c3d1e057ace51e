// Package svcerr holds the error categories shared by every service.
// Services wrap one of these with detail, transports classify with errors.Is.
package svcerr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("invalid api key")
	ErrRateLimit  = errors.New("quota exceeded")
	ErrDelivery   = errors.New("SMTP error")
	ErrNotFound   = errors.New("not found")
	ErrInternal   = errors.New("internal error")
)

// Wrap returns an error which matches kind with errors.Is and reads "<kind>: <detail>".
func Wrap(kind error, detail string) error {
	return fmt.Errorf("%w: %s", kind, detail)
}

// Detail strips the category prefix that Wrap added, so the user-facing message can be shown alone.
func Detail(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, kind := range []error{ErrValidation, ErrAuth, ErrRateLimit, ErrDelivery, ErrNotFound, ErrInternal} {
		prefix := kind.Error() + ": "
		if errors.Is(err, kind) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}

	return msg
}
