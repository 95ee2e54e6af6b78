package clinical

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownEntity = errors.New("unknown clinical entity")
	errEntityName    = errors.New("entity name required")
	errPage          = errors.New("invalid page settings")
)

type ValidationError struct {
	reason error
}

func (e *ValidationError) Error() string {
	return e.reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the table input at the boundary where gateway data enters
// the synthesizer.
func (in TableInput) Validate() error {
	if strings.TrimSpace(in.EntityName) == "" {
		return &ValidationError{reason: errEntityName}
	}
	if in.Page.Index < 0 || in.Page.Size < 0 {
		return &ValidationError{reason: fmt.Errorf("page %d size %d: %w", in.Page.Index, in.Page.Size, errPage)}
	}
	return nil
}
