package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
)

// ReadSource reads src as an http(s) URL, a file:// URL or a local path.
func ReadSource(ctx context.Context, kind Kind, src string, opt Options) (string, error) {
	src = strings.TrimSpace(src)
	lower := strings.ToLower(src)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return FetchTextWithOptions(ctx, kind, src, opt)
	}
	return readFile(kind, strings.TrimPrefix(src, "file://"), opt)
}

func readFile(kind Kind, path string, opt Options) (string, error) {
	stage := kind.stage()
	maxBytes := opt.MaxBytes
	if maxBytes <= 0 {
		maxBytes = kind.defaultMaxBytes()
	}
	fail := func(status int, code, message string, cause error) error {
		return &FetchError{
			Status: status,
			AppError: model.AppError{
				Code:    code,
				Message: message,
				Stage:   stage,
				URL:     path,
			},
			Cause: cause,
		}
	}
	if path == "" {
		return "", fail(http.StatusBadRequest, "INVALID_ARGUMENT", "路径不能为空", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fail(http.StatusBadRequest, "READ_FAILED", "读取本地文件失败", err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", fail(http.StatusInternalServerError, "READ_FAILED", "读取本地文件失败", err)
	}
	if int64(len(body)) > maxBytes {
		return "", fail(http.StatusUnprocessableEntity, "TOO_LARGE", "本地文件过大", nil)
	}
	text, ok := kind.text(body)
	if !ok {
		return "", fail(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "本地文件不是合法 UTF-8 文本", nil)
	}
	return text, nil
}
