package httpapi

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/clashsub/internal/logging"
	"github.com/John-Robertt/clashsub/internal/metrics"
)

// Options controls HTTP API runtime behavior.
type Options struct {
	// ConvertTimeout is the hard upper bound for a single conversion request
	// (template + fetch + decode + compile + render).
	ConvertTimeout time.Duration

	// FetchTimeout is the per-attempt timeout for remote resources.
	FetchTimeout time.Duration

	// FetchRetries is the number of extra attempts after a transient fetch
	// failure.
	FetchRetries int

	// Template is the server-side template path or URL. Empty uses the
	// builtin default. Clients cannot choose it.
	Template string

	Workers        int
	DropDuplicates bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.ConvertTimeout <= 0 {
		o.ConvertTimeout = 60 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}
