// internal/common/errors/handler.go
package errors

import (
	stderrors "errors"
	"time"
)

// ErrorHandler normalizes errors into StandardError and logs them with
// their classification.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err for component and returns its normalized form. Retryable
// errors log at warn, everything else at error.
func (h *ErrorHandler) Handle(component string, err error) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := Normalize(err)

	fields := map[string]interface{}{
		"component": component,
		"errorCode": string(stdErr.Code),
		"category":  GetErrorCategory(stdErr.Code),
		"retryable": stdErr.Retryable,
		"details":   stdErr.Details,
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}

	if h.logger == nil {
		return stdErr
	}
	if stdErr.Retryable {
		h.logger.Warn(stdErr.Message, fields)
	} else {
		h.logger.Error(stdErr.Message, fields)
	}
	return stdErr
}

// Normalize ensures we always have a StandardError
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}
