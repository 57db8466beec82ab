package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/John-Robertt/clashsub/internal/model"
)

// DefaultUserAgent is sent unless Options.UserAgent is set. Many providers
// only return the plain link list to Clash clients.
const DefaultUserAgent = "ClashForWindows/0.20.39"

type Kind int

const (
	KindSubscription Kind = iota
	KindTemplate
)

func (k Kind) stage() string {
	switch k {
	case KindSubscription:
		return "fetch_sub"
	case KindTemplate:
		return "fetch_template"
	default:
		return "fetch"
	}
}

// text converts a fetched body. Templates must be valid UTF-8; a subscription
// body that is not only loses the invalid bytes, and whatever remains is left
// to the normalizer, which yields zero links for garbage.
func (k Kind) text(body []byte) (string, bool) {
	if utf8.Valid(body) {
		return string(body), true
	}
	if k == KindSubscription {
		return strings.ToValidUTF8(string(body), ""), true
	}
	return "", false
}

func (k Kind) defaultMaxBytes() int64 {
	switch k {
	case KindSubscription:
		return 5 * 1024 * 1024
	case KindTemplate:
		return 2 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

type Options struct {
	Timeout      time.Duration // per attempt, default 30s
	MaxBytes     int64         // default per kind
	MaxRedirects int           // default 5
	UserAgent    string        // default DefaultUserAgent

	// Retries is the number of extra attempts after a transient failure
	// (network error, timeout, 5xx). 0 disables retrying.
	Retries       int
	RetryInterval time.Duration // first backoff, default 500ms
}

type FetchError struct {
	Status   int
	AppError model.AppError
	Cause    error

	temporary bool
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Temporary reports whether retrying the request may succeed.
func (e *FetchError) Temporary() bool { return e != nil && e.temporary }

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

func FetchText(ctx context.Context, kind Kind, rawURL string) (string, error) {
	return FetchTextWithOptions(ctx, kind, rawURL, Options{})
}

func FetchTextWithOptions(ctx context.Context, kind Kind, rawURL string, opt Options) (string, error) {
	stage := kind.stage()

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRedirects := opt.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 5
	}
	maxBytes := opt.MaxBytes
	if maxBytes == 0 {
		maxBytes = kind.defaultMaxBytes()
	}
	if maxBytes <= 0 {
		return "", &FetchError{
			Status: http.StatusBadRequest,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "响应大小上限必须大于 0",
				Stage:   stage,
				URL:     Redact(rawURL),
			},
		}
	}
	ua := opt.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &FetchError{
			Status: http.StatusBadRequest,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "仅允许 http/https URL",
				Stage:   stage,
				URL:     Redact(rawURL),
			},
			Cause: errors.Join(errInvalidURLOrScheme, err),
		}
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 1st redirect => len(via)==1, 5th redirect => len(via)==5.
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	r := &requester{
		kind:         kind,
		client:       client,
		rawURL:       rawURL,
		stage:        stage,
		userAgent:    ua,
		maxBytes:     maxBytes,
		maxRedirects: maxRedirects,
	}
	if opt.Retries <= 0 {
		return r.do(ctx)
	}

	interval := opt.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = interval
	eb.MaxInterval = 10 * interval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(opt.Retries)), ctx)

	var body string
	err = backoff.Retry(func() error {
		text, err := r.do(ctx)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && fe.Temporary() && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		body = text
		return nil
	}, policy)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", err
		}
		// the context ended while waiting between attempts
		if errors.Is(err, context.DeadlineExceeded) {
			return "", r.fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", false, err)
		}
		return "", r.fail(http.StatusBadGateway, "FETCH_FAILED", "拉取已取消", false, err)
	}
	return body, nil
}

type requester struct {
	kind         Kind
	client       *http.Client
	rawURL       string
	stage        string
	userAgent    string
	maxBytes     int64
	maxRedirects int
}

func (r *requester) fail(status int, code, message string, temporary bool, cause error) error {
	return &FetchError{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   r.stage,
			URL:     Redact(r.rawURL),
		},
		Cause:     cause,
		temporary: temporary,
	}
}

func (r *requester) do(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.rawURL, nil)
	if err != nil {
		return "", r.fail(http.StatusBadRequest, "INVALID_ARGUMENT", "请求 URL 不合法", false, err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := r.client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		if errors.Is(err, errTooManyRedirects) {
			return "", r.fail(http.StatusBadGateway, "FETCH_FAILED",
				fmt.Sprintf("重定向次数超过上限（>%d）", r.maxRedirects), false, err)
		}
		if errors.Is(err, errRedirectBadScheme) {
			return "", r.fail(http.StatusBadRequest, "INVALID_ARGUMENT", "重定向目标仅允许 http/https", false, err)
		}
		if errors.Is(err, context.Canceled) {
			return "", r.fail(http.StatusBadGateway, "FETCH_FAILED", "拉取已取消", false, err)
		}

		// Go may wrap timeouts (e.g. *url.Error).
		var ne net.Error
		if (errors.As(err, &ne) && ne.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			return "", r.fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", true, err)
		}
		return "", r.fail(http.StatusBadGateway, "FETCH_FAILED", "拉取远程资源失败", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", r.fail(http.StatusBadGateway, "FETCH_FAILED",
			fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), resp.StatusCode >= 500, nil)
	}

	// Read at most maxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", r.fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", true, err)
		}
		return "", r.fail(http.StatusBadGateway, "FETCH_FAILED", "读取上游响应失败", true, err)
	}
	if int64(len(body)) > r.maxBytes {
		return "", r.fail(http.StatusUnprocessableEntity, "TOO_LARGE",
			fmt.Sprintf("远程资源过大（>%d bytes）", r.maxBytes), false, nil)
	}
	text, ok := r.kind.text(body)
	if !ok {
		return "", r.fail(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "远程资源不是合法 UTF-8 文本", false, nil)
	}
	return text, nil
}

// Redact drops the query and userinfo of a URL. Subscription URLs carry
// their access token in either place.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return model.Snippet(rawURL, 200)
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return u.String()
}
