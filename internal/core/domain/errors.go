package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMessageNotFound     = errors.New("message not found")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("conflict")
	ErrQueryParse          = errors.New("query parse failure")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
