package process

import (
	"errors"
	"fmt"

	"github.com/tendant/adm-engine-worker/internal/engine"
	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// DecodeError reports a job message that could not be deserialized.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode job parameters: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Classify maps an error onto the published failure types.
func Classify(err error) schema.FailureType {
	if err == nil {
		return ""
	}

	var encErr *engine.EncodingError
	var gainErr *GainMappingError
	var decodeErr *DecodeError
	if errors.As(err, &encErr) || errors.As(err, &gainErr) || errors.As(err, &decodeErr) {
		return schema.FailureTypeValidation
	}

	var failure *engine.Failure
	var modeErr *UnknownGainModeError
	if errors.As(err, &failure) ||
		errors.As(err, &modeErr) ||
		errors.Is(err, engine.ErrUndecodableMessage) ||
		errors.Is(err, engine.ErrNotBuilt) {
		return schema.FailureTypePermanent
	}

	// Cancellation and anything unrecognised may succeed on redelivery.
	return schema.FailureTypeRetryable
}
