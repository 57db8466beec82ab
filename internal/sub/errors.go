package sub

import (
	"errors"

	"github.com/John-Robertt/clashsub/internal/model"
)

var errUnsupportedScheme = errors.New("unsupported link scheme")

// DecodeWarning reports one link that failed to decode. The link is skipped and
// the run continues.
type DecodeWarning struct {
	AppError model.AppError
	Protocol model.Protocol
	Cause    error
}

func (e *DecodeWarning) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *DecodeWarning) Unwrap() error { return e.Cause }

func newDecodeWarning(sourceURL string, l Line, cause error) *DecodeWarning {
	return &DecodeWarning{
		AppError: model.AppError{
			Code:    "SUB_DECODE_WARNING",
			Message: string(l.Protocol) + " 链接解析失败，已跳过",
			Stage:   "parse_sub",
			URL:     sourceURL,
			Line:    l.No,
			Snippet: model.Snippet(l.Text, 200),
		},
		Protocol: l.Protocol,
		Cause:    cause,
	}
}
