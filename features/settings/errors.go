package settings

import "errors"

var (
	ErrStoreClosed      = errors.New("settings store is closed")
	ErrTooManyConflicts = errors.New("settings update conflicted too many times")
	ErrDecodeValue      = errors.New("failed to decode settings value")
)
