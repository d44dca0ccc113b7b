package relay

import (
	"context"
)

// Run executes agent against input and blocks until the run finishes.
// The run is bounded by WithTimeout (default 60s) in addition to any
// deadline already on ctx.
//
//	result, err := relay.Run(ctx, agent, relay.Text("ping"))
func Run(ctx context.Context, agent *Agent, input Input, opts ...RunOption) (RunResult, error) {
	cfg := buildRunConfig(opts)
	if cfg.timeout <= 0 {
		cfg.timeout = defaultRunTimeout
	}
	r, err := newRunner(agent, input, cfg, nil)
	if err != nil {
		return RunResult{}, err
	}
	h := spawnRun(ctx, r, cfg.timeout)
	return h.Await(ctx)
}

// RunAsync starts the run in the background and returns immediately.
// The handle tracks run state and delivers the result via Await or
// Result; Cancel aborts the run. No aggregate timeout applies unless
// WithTimeout is set.
//
//	h := relay.RunAsync(ctx, agent, relay.Text("ping"))
//	result, err := h.Await(ctx)
func RunAsync(ctx context.Context, agent *Agent, input Input, opts ...RunOption) (*RunHandle, error) {
	cfg := buildRunConfig(opts)
	r, err := newRunner(agent, input, cfg, nil)
	if err != nil {
		return nil, err
	}
	return spawnRun(ctx, r, cfg.timeout), nil
}
