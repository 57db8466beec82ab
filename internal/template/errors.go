package template

import (
	"github.com/John-Robertt/clashsub/internal/model"
)

// TemplateError is fatal: generation stops before any output is written.
type TemplateError struct {
	AppError model.AppError
	Cause    error
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

func newTemplateError(sourceURL, code, message, snippet string, cause error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "validate_template",
			URL:     sourceURL,
			Snippet: model.Snippet(snippet, 200),
		},
		Cause: cause,
	}
}
