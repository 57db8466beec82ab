package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/clashsub/internal/fetch"
	"github.com/John-Robertt/clashsub/internal/pipeline"
	"github.com/John-Robertt/clashsub/internal/render"
)

// Output targets besides the render targets.
const (
	targetNodes  = "nodes"
	targetBase64 = "base64"
)

const maxRequestBody = 64 << 10

type convertRequest struct {
	URL      string
	Target   string // clash, meta, nodes or base64
	FileName string
}

type convertRequestJSON struct {
	URL      string `json:"url"`
	Target   string `json:"target"`
	FileName string `json:"fileName"`
}

func (s *server) handleSub(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertGET(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.convert(w, r, req)
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertPOST(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.convert(w, r, req)
}

func (s *server) convert(w http.ResponseWriter, r *http.Request, req convertRequest) {
	// Keep a hard upper bound so handlers don't hang if upstream misbehaves.
	ctx, cancel := context.WithTimeout(r.Context(), s.opt.ConvertTimeout)
	defer cancel()

	art, err := pipeline.Run(ctx, pipeline.Options{
		SubscriptionURL: req.URL,
		Template:        s.opt.Template,
		Fetch:           fetch.Options{Timeout: s.opt.FetchTimeout, Retries: s.opt.FetchRetries},
		Workers:         s.opt.Workers,
		DropDuplicates:  s.opt.DropDuplicates,
		Logger:          s.opt.Logger.WithField("request_id", requestID(r)),
		Metrics:         s.opt.Metrics,
	})
	if err != nil {
		if ctx.Err() != nil && !isTyped(err) {
			err = fmt.Errorf("convert: %w", context.DeadlineExceeded)
		}
		s.writeError(w, err)
		return
	}

	body, contentType := pick(art, req.Target)
	if err := setAttachmentHeaders(w, req); err != nil {
		s.writeError(w, err)
		return
	}
	writeArtifact(w, body, contentType, art.Report)
}

func isTyped(err error) bool {
	status, _ := statusOf(err)
	return status != http.StatusInternalServerError
}

func pick(art *pipeline.Artifacts, target string) ([]byte, string) {
	switch target {
	case string(render.TargetMeta):
		return art.Meta, "text/yaml; charset=utf-8"
	case targetNodes:
		return art.NodesJSON, "application/json; charset=utf-8"
	case targetBase64:
		return art.Subscription, "text/plain; charset=utf-8"
	default:
		return art.Clash, "text/yaml; charset=utf-8"
	}
}

func parseConvertGET(r *http.Request) (convertRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "url", "target", "fileName":
		default:
			return convertRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("不支持的 query 参数：%s", key), "")
		}
	}

	rawURL, err := singleQuery(q, "url", true)
	if err != nil {
		return convertRequest{}, err
	}
	targetStr, err := singleQuery(q, "target", false)
	if err != nil {
		return convertRequest{}, err
	}
	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		return convertRequest{}, err
	}
	return newConvertRequest(rawURL, targetStr, fileName)
}

func parseConvertPOST(w http.ResponseWriter, r *http.Request) (convertRequest, error) {
	var body convertRequestJSON
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}
	return newConvertRequest(body.URL, body.Target, body.FileName)
}

func newConvertRequest(rawURL, targetStr, fileName string) (convertRequest, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "url 不能为空", "expected: url=<subscription url>")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "url 仅支持 http/https", "")
	}
	target, err := parseTarget(targetStr)
	if err != nil {
		return convertRequest{}, err
	}
	return convertRequest{URL: rawURL, Target: target, FileName: strings.TrimSpace(fileName)}, nil
}

// parseTarget defaults to clash and accepts the render target aliases.
func parseTarget(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return string(render.TargetClash), nil
	case targetNodes, targetBase64:
		return s, nil
	}
	t, err := render.ParseTarget(s)
	if err != nil {
		return "", requestError("INVALID_ARGUMENT", "不支持的 target（仅支持 clash/meta/nodes/base64）", s)
	}
	return string(t), nil
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}
