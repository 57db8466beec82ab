// Package pipeline runs one conversion: template, fetch, decode, register,
// compile and render. It produces the output files in memory; writing them is
// left to the caller (see package publish).
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/clashsub/internal/compiler"
	"github.com/John-Robertt/clashsub/internal/fetch"
	"github.com/John-Robertt/clashsub/internal/logging"
	"github.com/John-Robertt/clashsub/internal/metrics"
	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/publish"
	"github.com/John-Robertt/clashsub/internal/registry"
	"github.com/John-Robertt/clashsub/internal/render"
	"github.com/John-Robertt/clashsub/internal/sub"
	"github.com/John-Robertt/clashsub/internal/template"
)

// Output file names.
const (
	FileNodes        = "nodes.json"
	FileClash        = "clash.yaml"
	FileMeta         = "clash_meta.yaml"
	FileSubscription = "subscription.txt"
)

type Options struct {
	SubscriptionURL string

	// Template is a path or URL. Empty uses the builtin default.
	Template string

	// AllowFiles lets SubscriptionURL name a local file. The HTTP API leaves
	// it off.
	AllowFiles bool

	Fetch          fetch.Options
	Workers        int
	DropDuplicates bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

type Report struct {
	Candidates int                    `json:"candidates"`
	Skipped    int                    `json:"skipped"`
	Nodes      int                    `json:"nodes"`
	Dropped    int                    `json:"dropped"`
	ByProtocol map[model.Protocol]int `json:"by_protocol"`
	Warnings   []model.AppError       `json:"warnings,omitempty"`
	Duration   time.Duration          `json:"duration_ns"`
}

type Artifacts struct {
	Nodes        []model.Node
	NodesJSON    []byte
	Clash        []byte
	Meta         []byte
	Subscription []byte
	Report       Report
}

// Files lists the artifacts under their published names.
func (a *Artifacts) Files() []publish.File {
	return []publish.File{
		{Name: FileNodes, Data: a.NodesJSON},
		{Name: FileClash, Data: a.Clash},
		{Name: FileMeta, Data: a.Meta},
		{Name: FileSubscription, Data: a.Subscription},
	}
}

// EmptyResultError reports a subscription that had links but none of them
// decoded. Run returns it together with valid, empty artifacts.
type EmptyResultError struct {
	AppError model.AppError
}

func (e *EmptyResultError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, nil)
}

func Run(ctx context.Context, opt Options) (*Artifacts, error) {
	start := time.Now()
	log := opt.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithField("subscription", fetch.Redact(opt.SubscriptionURL))

	art, warnByProto, err := run(ctx, opt, log)
	elapsed := time.Since(start)

	obs := metrics.Run{Outcome: metrics.OutcomeFailed, Duration: elapsed, Warnings: warnByProto}
	if art != nil {
		art.Report.Duration = elapsed
		obs.Nodes = art.Report.ByProtocol
		obs.Outcome = metrics.OutcomeSuccess
	}

	switch err.(type) {
	case nil:
		log.WithFields(logrus.Fields{
			"nodes":      art.Report.Nodes,
			"candidates": art.Report.Candidates,
			"warnings":   len(art.Report.Warnings),
			"elapsed":    elapsed.Round(time.Millisecond),
		}).Info("conversion finished")
	case *EmptyResultError:
		obs.Outcome = metrics.OutcomeEmpty
		log.WithFields(logrus.Fields{
			"candidates": art.Report.Candidates,
			"warnings":   len(art.Report.Warnings),
		}).Warn("subscription produced no usable nodes")
	default:
		log.WithError(err).Error("conversion failed")
	}
	opt.Metrics.ObserveRun(obs)
	return art, err
}

func run(ctx context.Context, opt Options, log logrus.FieldLogger) (*Artifacts, map[model.Protocol]int, error) {
	tmpl, err := loadTemplate(ctx, opt)
	if err != nil {
		return nil, nil, err
	}

	text, err := readSubscription(ctx, opt)
	if err != nil {
		return nil, nil, err
	}

	decoded, err := sub.Parse(ctx, text, sub.Options{
		SourceURL: fetch.Redact(opt.SubscriptionURL),
		Workers:   opt.Workers,
	})
	if err != nil {
		return nil, nil, err
	}

	rep := Report{
		Candidates: decoded.Candidates,
		Skipped:    decoded.Skipped,
		ByProtocol: make(map[model.Protocol]int),
	}
	warnByProto := make(map[model.Protocol]int)
	for _, w := range decoded.Warnings {
		warnByProto[w.Protocol]++
		rep.Warnings = append(rep.Warnings, w.AppError)
		log.WithFields(logrus.Fields{"line": w.AppError.Line, "protocol": w.Protocol}).
			WithError(w.Cause).Debug("link skipped")
	}

	reg := registry.New(registry.Options{
		Reserved:       tmpl.GroupNames(),
		DropDuplicates: opt.DropDuplicates,
	})
	for _, n := range decoded.Nodes {
		if _, err := reg.Add(n); err != nil {
			rep.Dropped++
			if re, ok := err.(*registry.Error); ok {
				rep.Warnings = append(rep.Warnings, re.AppError)
			}
			log.WithError(err).Debug("node dropped")
		}
	}
	reg.Freeze()
	nodes := reg.Nodes()
	rep.Nodes = len(nodes)
	for _, n := range nodes {
		rep.ByProtocol[n.Protocol]++
	}

	res, err := compiler.Compile(nodes, tmpl)
	if err != nil {
		return nil, warnByProto, err
	}
	for _, w := range res.Warnings {
		rep.Warnings = append(rep.Warnings, w.AppError)
	}
	for _, r := range render.UnsupportedRules(render.TargetClash, res.Rules) {
		rep.Warnings = append(rep.Warnings, model.AppError{
			Code:    "RULE_UNSUPPORTED_TARGET",
			Message: fmt.Sprintf("规则类型 %s 仅 Clash Meta 支持", r.Type),
			Stage:   "render",
			Snippet: model.Snippet(r.Raw, 200),
		})
	}

	art := &Artifacts{Nodes: nodes, Report: rep}
	if art.NodesJSON, err = reg.MarshalJSON(); err != nil {
		return nil, warnByProto, err
	}
	if art.Clash, err = render.Document(render.TargetClash, tmpl, nodes, res); err != nil {
		return nil, warnByProto, err
	}
	if art.Meta, err = render.Document(render.TargetMeta, tmpl, nodes, res); err != nil {
		return nil, warnByProto, err
	}
	encoded, err := render.Subscription(nodes)
	if err != nil {
		return nil, warnByProto, err
	}
	art.Subscription = []byte(encoded)

	if rep.Candidates > 0 && rep.Nodes == 0 {
		return art, warnByProto, &EmptyResultError{AppError: model.AppError{
			Code:    "EMPTY_RESULT",
			Message: "订阅中没有可用节点",
			Stage:   "register",
			URL:     fetch.Redact(opt.SubscriptionURL),
			Hint:    fmt.Sprintf("%d 条链接全部解析失败或被丢弃", rep.Candidates),
		}}
	}
	return art, warnByProto, nil
}

func loadTemplate(ctx context.Context, opt Options) (*template.Template, error) {
	src := strings.TrimSpace(opt.Template)
	if src == "" {
		return template.Default(), nil
	}
	text, err := fetch.ReadSource(ctx, fetch.KindTemplate, src, opt.Fetch)
	if err != nil {
		return nil, err
	}
	return template.Parse(fetch.Redact(src), []byte(text))
}

func readSubscription(ctx context.Context, opt Options) (string, error) {
	if opt.AllowFiles {
		return fetch.ReadSource(ctx, fetch.KindSubscription, opt.SubscriptionURL, opt.Fetch)
	}
	return fetch.FetchTextWithOptions(ctx, fetch.KindSubscription, opt.SubscriptionURL, opt.Fetch)
}
