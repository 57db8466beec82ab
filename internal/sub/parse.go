package sub

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/clashsub/internal/model"
)

type Options struct {
	// SourceURL is attached to warnings.
	SourceURL string

	// Workers bounds parallel decoding. 0 means GOMAXPROCS, 1 decodes
	// sequentially.
	Workers int
}

type Result struct {
	// Nodes are the decoded nodes in input order.
	Nodes    []model.Node
	Warnings []*DecodeWarning

	// Candidates counts lines with a recognised scheme, Skipped the
	// non-comment lines without one.
	Candidates int
	Skipped    int
}

// Parse decodes every link of a subscription body. text may be plain or
// base64; see DecodeBody. A link that fails to decode becomes a warning and
// never aborts the run; the only error is ctx being done.
func Parse(ctx context.Context, text string, opt Options) (*Result, error) {
	res := &Result{}
	var cands []Line
	for l := range lines(DecodeBody(text)) {
		if l.Protocol == "" {
			res.Skipped++
			continue
		}
		cands = append(cands, l)
	}
	res.Candidates = len(cands)

	type outcome struct {
		node model.Node
		warn *DecodeWarning
	}
	outs := make([]outcome, len(cands))

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, l := range cands {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := decodeLine(l)
			if err != nil {
				outs[i].warn = newDecodeWarning(opt.SourceURL, l, err)
				return nil
			}
			outs[i].node = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// outs is indexed by input position, so the order holds regardless of
	// which worker finished first.
	for _, o := range outs {
		if o.warn != nil {
			res.Warnings = append(res.Warnings, o.warn)
			continue
		}
		res.Nodes = append(res.Nodes, o.node)
	}
	return res, nil
}

func decodeLine(l Line) (n model.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	n, err = decoders[l.Protocol](l.Text)
	if err != nil {
		return model.Node{}, err
	}
	if err := n.Validate(); err != nil {
		return model.Node{}, err
	}
	return n, nil
}
