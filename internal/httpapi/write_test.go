package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/pipeline"
)

func TestWriteAppError_JSONShapeAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	writeAppError(rr, http.StatusUnprocessableEntity, model.AppError{
		Code:    "SUB_DECODE_WARNING",
		Message: "vmess 链接解析失败，已跳过",
		Stage:   "parse_sub",
		URL:     "https://example.com/sub?redacted",
		Line:    12,
		Snippet: "vmess://not-base64",
	})

	if got, want := rr.Code, http.StatusUnprocessableEntity; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}
	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type = %q, want %q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "SUB_DECODE_WARNING" || resp.Error.Stage != "parse_sub" || resp.Error.Line != 12 {
		t.Fatalf("error = %+v", resp.Error)
	}

	var raw map[string]map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &raw)
	if _, ok := raw["error"]["hint"]; ok {
		t.Fatalf("empty hint should be omitted: %s", rr.Body.String())
	}
}

func TestWriteArtifact_SummaryHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	rep := pipeline.Report{Nodes: 3, Warnings: []model.AppError{{Code: "SUB_DECODE_WARNING"}}}
	writeArtifact(rr, []byte("proxies: []\n"), "text/yaml; charset=utf-8", rep)

	if rr.Code != http.StatusOK || rr.Body.String() != "proxies: []\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	for k, want := range map[string]string{
		"Content-Type":    "text/yaml; charset=utf-8",
		"Cache-Control":   "no-store",
		"X-Node-Count":    "3",
		"X-Warning-Count": "1",
	} {
		if got := rr.Header().Get(k); got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestWriteText(t *testing.T) {
	rr := httptest.NewRecorder()
	writeText(rr, http.StatusAccepted, "hello\n")
	if rr.Code != http.StatusAccepted || rr.Body.String() != "hello\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}
}
