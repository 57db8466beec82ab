package compiler

import (
	"errors"
	"reflect"
	"testing"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/template"
)

const tmplText = `
proxy-groups:
  - name: PROXY
    type: select
    proxies: ["@all", DIRECT]
  - name: AUTO
    type: url-test
    proxies: ["@all"]
  - name: HK
    type: url-test
    filter: "HK"
  - name: KR
    type: url-test
    filter: "KR"
  - name: ALL
    type: select
    include-all: true
    proxies: [DIRECT]
  - name: FIXED
    type: select
    proxies: [PROXY, DIRECT]
rules:
  - DOMAIN,example.com,PROXY
  - GEOIP,CN,Nowhere
  - MATCH,PROXY
`

func mustTemplate(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.Parse("test", []byte(tmplText))
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	return tmpl
}

func nodes(names ...string) []model.Node {
	out := make([]model.Node, 0, len(names))
	for i, n := range names {
		out = append(out, model.Node{Protocol: model.ProtocolTrojan, Name: n, Server: "a.com", Port: i + 1, Credential: "pw"})
	}
	return out
}

func members(res *Result) map[string][]string {
	out := make(map[string][]string, len(res.Groups))
	for _, g := range res.Groups {
		out[g.Name] = g.Members
	}
	return out
}

func TestCompile_Expansion(t *testing.T) {
	res, err := Compile(nodes("HK 1", "JP 1", "HK 2"), mustTemplate(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string][]string{
		"PROXY": {"HK 1", "JP 1", "HK 2", "DIRECT"},
		"AUTO":  {"HK 1", "JP 1", "HK 2"},
		"HK":    {"HK 1", "HK 2"},
		"KR":    {"HK 1"}, // no match: first node
		"ALL":   {"DIRECT", "HK 1", "JP 1", "HK 2"},
		"FIXED": {"PROXY", "DIRECT"},
	}
	if got := members(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("members=%v, want=%v", got, want)
	}
	if res.Groups[5].AutoInclude || !res.Groups[1].AutoInclude {
		t.Fatalf("auto include flags wrong: %+v", res.Groups)
	}

	if len(res.Rules) != 3 || res.Rules[2].Type != "MATCH" || res.Rules[0].Raw != "DOMAIN,example.com,PROXY" {
		t.Fatalf("rules=%+v", res.Rules)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].AppError.Code != "REFERENCE_NOT_FOUND" {
		t.Fatalf("warnings=%v", res.Warnings)
	}
}

func TestCompile_ThreeNodesAutoGroup(t *testing.T) {
	tmpl, err := template.Parse("t", []byte("proxy-groups: [{name: Auto, type: url-test, include-all: true}]\nrules: [MATCH,Auto]\n"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := Compile(nodes("c", "a", "b"), tmpl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(res.Groups[0].Members, want) {
		t.Fatalf("members=%v, want=%v", res.Groups[0].Members, want)
	}
}

func TestCompile_ExclusiveFiltersFirstMatchWins(t *testing.T) {
	tmpl, err := template.Parse("t", []byte(`
proxy-groups:
  - {name: HK, type: url-test, filter: "香港|HK", exclusive: true}
  - {name: US, type: url-test, filter: "美国|US", exclusive: true}
  - {name: US-ALL, type: select, filter: "US"}
rules: [MATCH,HK]
`))
	if err != nil {
		t.Fatal(err)
	}
	res, err := Compile(nodes("香港 US", "US 1", "HK 2"), tmpl)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		"HK":     {"香港 US", "HK 2"},
		"US":     {"US 1"},
		"US-ALL": {"香港 US", "US 1"}, // not exclusive: sees every match
	}
	if got := members(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("members=%v, want=%v", got, want)
	}

	res, err = Compile(nodes("香港 US 01", "美国 02"), template.Default())
	if err != nil {
		t.Fatal(err)
	}
	got := members(res)
	if !reflect.DeepEqual(got["🇭🇰 香港节点"], []string{"香港 US 01"}) || !reflect.DeepEqual(got["🇺🇸 美国节点"], []string{"美国 02"}) {
		t.Fatalf("default regions: HK=%v US=%v", got["🇭🇰 香港节点"], got["🇺🇸 美国节点"])
	}
}

func TestCompile_ZeroNodes(t *testing.T) {
	res, err := Compile(nil, mustTemplate(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := members(res)
	for _, name := range []string{"AUTO", "HK", "KR"} {
		if len(got[name]) != 0 || got[name] == nil {
			t.Fatalf("%s members=%#v, want empty non-nil", name, got[name])
		}
	}
	if !reflect.DeepEqual(got["PROXY"], []string{"DIRECT"}) {
		t.Fatalf("PROXY members=%v", got["PROXY"])
	}
}

func TestCompile_NameConflict(t *testing.T) {
	_, err := Compile(nodes("HK"), mustTemplate(t))
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	if ce.AppError.Code != "PROFILE_VALIDATE_ERROR" {
		t.Fatalf("code=%q", ce.AppError.Code)
	}

	if _, err := Compile(nil, nil); !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError for nil template, got %v", err)
	}
}
