package orders

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrOrderBuildFailed means a decoded row lacked a mandatory field.
	ErrOrderBuildFailed = errors.New("order build failed")
	// ErrInvalidTransition is returned by guarded transitions that would not
	// advance the lifecycle.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// CodecError reports an event payload that could not be decoded.
type CodecError struct {
	Cause error
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec error: %v", e.Cause) }

func (e *CodecError) Unwrap() error { return e.Cause }
