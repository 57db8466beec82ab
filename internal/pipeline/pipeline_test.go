package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/clashsub/internal/fetch"
	"github.com/John-Robertt/clashsub/internal/metrics"
	"github.com/John-Robertt/clashsub/internal/template"
)

const (
	ssLink     = "ss://YWVzLTI1Ni1nY206cGFzcw==@1.2.3.4:8388#Test"
	trojanLink = "trojan://pw@tr.example.com:443?sni=a.com#TR"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestRun_Success(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte(ssLink + "\n" + trojanLink + "\nvmess://not-base64!!\n"))
	srv := serve(t, http.StatusOK, body)
	m := metrics.New()

	art, err := Run(context.Background(), Options{
		SubscriptionURL: srv.URL + "/sub?token=secret",
		Workers:         2,
		Metrics:         m,
	})
	require.NoError(t, err)
	require.NotNil(t, art)

	rep := art.Report
	require.Equal(t, 3, rep.Candidates)
	require.Equal(t, 2, rep.Nodes)
	require.Equal(t, 1, rep.ByProtocol["ss"])
	require.Equal(t, 1, rep.ByProtocol["trojan"])
	require.NotEmpty(t, rep.Warnings)
	require.Equal(t, "SUB_DECODE_WARNING", rep.Warnings[0].Code)
	require.Equal(t, 3, rep.Warnings[0].Line)
	require.NotContains(t, rep.Warnings[0].URL, "secret")

	names := make([]string, 0, 4)
	for _, f := range art.Files() {
		names = append(names, f.Name)
		require.NotEmpty(t, f.Data, f.Name)
	}
	require.Equal(t, []string{FileNodes, FileClash, FileMeta, FileSubscription}, names)

	require.Contains(t, string(art.NodesJSON), `"protocol": "ss"`)
	require.Contains(t, string(art.Clash), "name: Test")
	require.NotContains(t, string(art.Clash), "geodata-mode")
	require.Contains(t, string(art.Meta), "geodata-mode: true")

	decoded, err := base64.StdEncoding.DecodeString(string(art.Subscription))
	require.NoError(t, err)
	lines := strings.Split(string(decoded), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "ss://"))
	require.True(t, strings.HasPrefix(lines[1], "trojan://"))

	out := scrape(t, m)
	require.Contains(t, out, `clashsub_runs_total{outcome="success"} 1`)
	require.Contains(t, out, `clashsub_decode_warnings_total{protocol="vmess"} 1`)
}

func TestRun_EmptyResult(t *testing.T) {
	srv := serve(t, http.StatusOK, "vmess://not-base64!!\ntrojan://@broken\n")
	m := metrics.New()

	art, err := Run(context.Background(), Options{SubscriptionURL: srv.URL, Metrics: m})
	var empty *EmptyResultError
	require.ErrorAs(t, err, &empty)
	require.Equal(t, "EMPTY_RESULT", empty.AppError.Code)

	require.NotNil(t, art)
	require.Equal(t, 2, art.Report.Candidates)
	require.Zero(t, art.Report.Nodes)
	require.Equal(t, "[]\n", string(art.NodesJSON))
	require.Contains(t, string(art.Clash), "proxy-groups:")
	require.Contains(t, scrape(t, m), `clashsub_runs_total{outcome="empty"} 1`)
}

func TestRun_NoLinksIsNotAnError(t *testing.T) {
	srv := serve(t, http.StatusOK, "# comment\njust some text!\n")

	art, err := Run(context.Background(), Options{SubscriptionURL: srv.URL})
	require.NoError(t, err)
	require.Zero(t, art.Report.Candidates)
	require.Equal(t, 1, art.Report.Skipped)
	require.Empty(t, art.Subscription)
}

func TestRun_BinaryBodyYieldsEmptyConfig(t *testing.T) {
	srv := serve(t, http.StatusOK, "\xff\xfe\x00garbage\x80\x81")

	art, err := Run(context.Background(), Options{SubscriptionURL: srv.URL})
	require.NoError(t, err)
	require.Zero(t, art.Report.Candidates)
	require.Zero(t, art.Report.Nodes)
	require.Equal(t, "[]\n", string(art.NodesJSON))

	for name, doc := range map[string][]byte{FileClash: art.Clash, FileMeta: art.Meta} {
		var parsed map[string]any
		require.NoError(t, yaml.Unmarshal(doc, &parsed), name)
		require.Contains(t, parsed, "proxy-groups", name)
		require.Contains(t, parsed, "rules", name)
	}
}

func TestRun_FetchFailure(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "gone")
	m := metrics.New()

	art, err := Run(context.Background(), Options{SubscriptionURL: srv.URL, Metrics: m})
	require.Nil(t, art)
	var fe *fetch.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusBadGateway, fe.Status)
	require.Contains(t, fe.AppError.Message, "404")
	require.Contains(t, scrape(t, m), `clashsub_runs_total{outcome="failed"} 1`)
}

func TestRun_LocalFilesNeedOptIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.txt")
	require.NoError(t, os.WriteFile(path, []byte(ssLink+"\n"), 0o644))

	_, err := Run(context.Background(), Options{SubscriptionURL: path})
	var fe *fetch.FetchError
	require.ErrorAs(t, err, &fe)

	art, err := Run(context.Background(), Options{SubscriptionURL: path, AllowFiles: true})
	require.NoError(t, err)
	require.Equal(t, 1, art.Report.Nodes)
}

func TestRun_CustomTemplate(t *testing.T) {
	tmpl := `mixed-port: 7890
proxies: []
proxy-groups:
  - name: PROXY
    type: select
    proxies: ["@all", DIRECT]
rules:
  - DOMAIN-SUFFIX,example.com,PROXY
  - GEOSITE,cn,DIRECT
  - MATCH,PROXY
`
	path := filepath.Join(t.TempDir(), "tmpl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tmpl), 0o644))

	// A node named like a group is renamed rather than shadowing it.
	srv := serve(t, http.StatusOK, ssLink+"\n"+strings.Replace(trojanLink, "#TR", "#PROXY", 1)+"\n")

	art, err := Run(context.Background(), Options{SubscriptionURL: srv.URL, Template: path})
	require.NoError(t, err)
	require.Equal(t, "PROXY-2", art.Nodes[1].Name)
	require.Contains(t, string(art.Clash), "- PROXY-2")

	var codes []string
	for _, w := range art.Report.Warnings {
		codes = append(codes, w.Code)
	}
	require.Contains(t, codes, "RULE_UNSUPPORTED_TARGET")
}

func TestRun_BadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmpl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("proxy-groups: []\nrules: []\n"), 0o644))
	srv := serve(t, http.StatusOK, ssLink)

	_, err := Run(context.Background(), Options{SubscriptionURL: srv.URL, Template: path})
	var te *template.TemplateError
	require.ErrorAs(t, err, &te)
}

func TestRun_Canceled(t *testing.T) {
	srv := serve(t, http.StatusOK, ssLink)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{SubscriptionURL: srv.URL})
	require.Error(t, err)
	var empty *EmptyResultError
	require.False(t, errors.As(err, &empty))
}
