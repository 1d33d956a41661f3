package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/crawlkit/internal/model"
)

// ErrDrop is returned by a step to stop processing a response without
// reporting a failure. Later steps do not see the response.
var ErrDrop = errors.New("response dropped")

// Step processes one fetched response.
type Step interface {
	// Do processes one response. A returned error is reported by the
	// spider; it never stops the crawl.
	Do(ctx context.Context, resp *model.Response) error

	// Name identifies the step in logs, errors and stats.
	Name() string
}

// StepStats counts what a step did with the responses it received.
type StepStats struct {
	Name    string
	OK      int
	Dropped int
	Failed  int
}

// Pipeline runs its steps in order on every response the spider fetches.
//
// A Pipeline is shared by every spider worker; steps must be safe for
// concurrent use and must be added before the crawl starts. A step that
// panics fails that response only; the worker keeps crawling.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool

	mu    sync.Mutex
	stats []StepStats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running the remaining steps after one fails;
// every failure is then returned, joined. By default the first failure
// stops the response, since later steps usually build on earlier ones.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends steps; they run in the order added.
func (p *Pipeline) AddStep(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, step := range steps {
		p.steps = append(p.steps, step)
		p.stats = append(p.stats, StepStats{Name: step.Name()})
	}
}

// Execute runs the steps on resp. Context cancellation is checked between
// steps; a step is expected to honour ctx itself.
//
// Failures are wrapped in *StepError. A step returning ErrDrop ends the
// run with a nil error.
func (p *Pipeline) Execute(ctx context.Context, resp *model.Response) error {
	var errs []error
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "url", resp.URL(), "reason", err)
			return errors.Join(append(errs, err)...)
		}

		err := p.run(ctx, step, resp)
		switch {
		case err == nil:
			p.count(i, func(s *StepStats) { s.OK++ })
		case errors.Is(err, ErrDrop):
			p.count(i, func(s *StepStats) { s.Dropped++ })
			p.logger.Debug("response dropped", "step", step.Name(), "url", resp.URL())
			return errors.Join(errs...)
		default:
			p.count(i, func(s *StepStats) { s.Failed++ })
			p.logger.Error("step failed", "step", step.Name(), "url", resp.URL(), "error", err)

			stepErr := &StepError{Step: step.Name(), URL: resp.URL(), Err: err}
			if !p.continueOnError {
				return stepErr
			}
			errs = append(errs, stepErr)
		}
	}
	return errors.Join(errs...)
}

// run calls step.Do, turning a panic into an error.
func (p *Pipeline) run(ctx context.Context, step Step, resp *model.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()
	return step.Do(ctx, resp)
}

func (p *Pipeline) count(i int, update func(*StepStats)) {
	p.mu.Lock()
	update(&p.stats[i])
	p.mu.Unlock()
}

// Stats returns a copy of the per-step counters in step order.
func (p *Pipeline) Stats() []StepStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StepStats(nil), p.stats...)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
