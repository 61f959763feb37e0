package service

import (
	"errors"
	"fmt"
)

var (
	ErrMediaNotFound    = errors.New("media not found")
	ErrContentNotFound  = errors.New("content not found")
	ErrTransitionFailed = errors.New("file transition failed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidBatchSize = errors.New("batch_size must be between 1 and 1000")

	ErrConcurrentTransition = errors.New("media was transitioned by another request")
)

// TransitionError reports the step at which a protect or unprotect run stopped.
// Nothing is persisted when it is returned.
type TransitionError struct {
	MediaID uint
	Step    string
	Err     error
}

func (e *TransitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transition of media %d failed at %s", e.MediaID, e.Step)
	}

	return fmt.Sprintf("transition of media %d failed at %s, %v", e.MediaID, e.Step, e.Err)
}

func (e *TransitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransitionFailed}
	}

	return []error{ErrTransitionFailed, e.Err}
}
