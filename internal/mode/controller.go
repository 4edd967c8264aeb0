package mode

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Pipeline is one producer/consumer chain. Run blocks until ctx is done
// and must not touch its source once it returns.
type Pipeline interface {
	Name() string
	Run(ctx context.Context) error
}

// Builder returns the pipelines that make up a mode. Off has none.
type Builder func(Mode) []Pipeline

// Controller owns the active pipelines.
type Controller struct {
	build Builder
	log   *zap.Logger

	mu       sync.Mutex
	current  Mode
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	onChange []func(Mode)
}

// NewController creates a controller in Off.
func NewController(build Builder, log *zap.Logger) *Controller {
	return &Controller{build: build, log: log.With(zap.String("component", "mode"))}
}

// OnChange registers fn to run after every completed transition.
func (c *Controller) OnChange(fn func(Mode)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set transitions to m. The outgoing pipelines are cancelled and joined
// before the new ones start. Setting the current mode is a no-op.
// Pipelines run under parent, so cancelling parent stops them as well.
func (c *Controller) Set(parent context.Context, m Mode) {
	c.mu.Lock()
	if m == c.current && (m == Off || c.cancel != nil) {
		c.mu.Unlock()
		return
	}
	from := c.current
	c.stopLocked()

	pipes := c.build(m)
	if len(pipes) > 0 {
		ctx, cancel := context.WithCancel(parent)
		c.cancel = cancel
		for _, p := range pipes {
			c.wg.Add(1)
			go c.run(ctx, p)
		}
	}
	c.current = m
	hooks := append([]func(Mode){}, c.onChange...)
	c.mu.Unlock()

	c.log.Info("mode changed", zap.Stringer("from", from), zap.Stringer("to", m), zap.Int("pipelines", len(pipes)))
	for _, fn := range hooks {
		fn(m)
	}
}

func (c *Controller) run(ctx context.Context, p Pipeline) {
	defer c.wg.Done()
	err := p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error("pipeline stopped", zap.String("pipeline", p.Name()), zap.Error(err))
		return
	}
	c.log.Debug("pipeline stopped", zap.String("pipeline", p.Name()))
}

// stopLocked cancels and joins the active pipelines. Caller holds mu.
func (c *Controller) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.cancel = nil
}

// Stop cancels the active pipelines, waits for them and returns to Off.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.current = Off
	c.mu.Unlock()
}
