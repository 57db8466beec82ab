// Package schedule runs conversion jobs on a cron spec.
package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/clashsub/internal/logging"
)

// DefaultSpec refreshes the outputs every six hours.
const DefaultSpec = "@every 6h"

const defaultJobTimeout = 5 * time.Minute

// Job is a task triggered by the scheduler.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f JobFunc) Name() string                  { return f.JobName }
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

type Options struct {
	Logger logrus.FieldLogger

	// Timeout bounds a single run. Default 5m.
	Timeout time.Duration
}

// Scheduler wraps cron with per-run timeouts and logging. A run that is still
// going when its next tick fires makes that tick a no-op.
//
// Every run, ticked or triggered, gets a context derived from the scheduler's
// own; Stop cancels it and waits for the runs to return.
type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	timeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup // triggered runs; cron tracks its own

	mu      sync.Mutex
	started bool
	stopped bool
}

func New(opt Options) *Scheduler {
	log := opt.Logger
	if log == nil {
		log = logging.Discard()
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, log: log, timeout: timeout, ctx: ctx, cancel: cancel}
}

// Register binds job to spec. An empty spec means DefaultSpec.
func (s *Scheduler) Register(spec string, job Job) (cron.EntryID, error) {
	if job == nil {
		return 0, errors.New("schedule: job is required")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSpec
	}
	id, err := s.cron.AddFunc(spec, s.wrap(job))
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"job": job.Name(), "spec": spec}).Info("job registered")
	return id, nil
}

// Trigger runs the entry now, through the same overlap guard as its ticks.
// It blocks until the run finishes or is skipped, and reports false for an
// unknown entry or a stopped scheduler.
func (s *Scheduler) Trigger(id cron.EntryID) bool {
	e := s.cron.Entry(id)
	if !e.Valid() {
		return false
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	e.WrappedJob.Run()
	return true
}

// Next reports when the entry fires next. Zero before Start.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.cron.Start()
	s.started = true
}

// Stop halts the ticks and cancels the context of running jobs. The returned
// context is done once every ticked and triggered run has returned. Stop is
// final: later Start and Trigger calls do nothing.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	s.started = false
	s.mu.Unlock()

	s.cancel()
	ticks := s.cron.Stop()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		<-ticks.Done()
		s.running.Wait()
		done()
	}()
	return ctx
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		log := s.log.WithField("job", job.Name())
		start := time.Now()
		log.Info("job started")
		if err := job.Run(ctx); err != nil {
			log.WithError(err).WithField("elapsed", time.Since(start).Round(time.Millisecond)).Error("job failed")
			return
		}
		log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("job completed")
	}
}

// cronLogger feeds cron's own messages (skips, recovered panics) into logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
