package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/John-Robertt/clashsub/internal/compiler"
	"github.com/John-Robertt/clashsub/internal/fetch"
	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/pipeline"
	"github.com/John-Robertt/clashsub/internal/render"
	"github.com/John-Robertt/clashsub/internal/template"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// statusOf maps a typed error to its HTTP status and payload.
func statusOf(err error) (int, model.AppError) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return fe.Status, fe.AppError
	}

	// Template, compile, render and empty-result errors are content errors.
	var ee *pipeline.EmptyResultError
	if errors.As(err, &ee) {
		return http.StatusUnprocessableEntity, ee.AppError
	}

	var te *template.TemplateError
	if errors.As(err, &te) {
		return http.StatusUnprocessableEntity, te.AppError
	}

	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return http.StatusUnprocessableEntity, ce.AppError
	}

	var re *render.RenderError
	if errors.As(err, &re) {
		return http.StatusUnprocessableEntity, re.AppError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, model.AppError{
			Code:    "CONVERT_TIMEOUT",
			Message: "转换超时",
			Stage:   "convert",
		}
	}

	return http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, app := statusOf(err)
	s.opt.Metrics.IncAppError(app.Stage, app.Code)
	if status >= http.StatusInternalServerError && app.Code == "INTERNAL_ERROR" {
		s.opt.Logger.WithError(err).Error("unexpected conversion error")
	}
	writeAppError(w, status, app)
}
