package reactor

import "time"

// reactorOptions holds resolved configuration for New.
type reactorOptions struct {
	logger               Logger
	metricsEnabled       bool
	initialCompletionCap int
	maxSpinLimit         int
	taskDrainBudget      time.Duration
	notifyQuantum        int
	batchSize            int
}

// ReactorOption configures a Reactor at construction time.
type ReactorOption interface {
	applyReactor(*reactorOptions) error
}

type reactorOptionFunc func(*reactorOptions) error

func (f reactorOptionFunc) applyReactor(opts *reactorOptions) error {
	return f(opts)
}

// WithLogger installs a structured logger. The default is NoOpLogger.
func WithLogger(l Logger) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		opts.logger = l
		return nil
	})
}

// WithMetrics enables idle-latency and task-rate tracking. Metrics
// collection is cheap (one P² update per idle cycle) but not free, so it
// remains opt-in.
func WithMetrics(enabled bool) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	})
}

// WithInitialCompletionCapacity overrides the Completion Table's starting
// size (default 512).
func WithInitialCompletionCapacity(n int) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		if n > 0 {
			opts.initialCompletionCap = n
		}
		return nil
	})
}

// WithMaxSpinLimit bounds how many consecutive empty poll iterations the
// reactor spins through before committing to a blocking kernel wait.
func WithMaxSpinLimit(n int) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		if n >= 0 {
			opts.maxSpinLimit = n
		}
		return nil
	})
}

// WithTaskDrainBudget bounds how long one tick spends draining the remote
// task queue before moving on (default 500µs).
func WithTaskDrainBudget(d time.Duration) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		if d > 0 {
			opts.taskDrainBudget = d
		}
		return nil
	})
}

// WithNotifyQuantum overrides how many remote-queue enqueues accumulate
// before a producer is required to also wake the reactor (default 32).
func WithNotifyQuantum(n int) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		if n > 0 {
			opts.notifyQuantum = n
		}
		return nil
	})
}

// WithBatchSize overrides how many events one kernel wait call retrieves
// (default 128). The pollers' event buffers hold 128 entries, so values
// above 128 still retrieve at most 128 events per call.
func WithBatchSize(n int) ReactorOption {
	return reactorOptionFunc(func(opts *reactorOptions) error {
		if n > 0 {
			opts.batchSize = n
		}
		return nil
	})
}

const defaultMaxSpinLimit = 16

func resolveReactorOptions(opts []ReactorOption) (*reactorOptions, error) {
	cfg := &reactorOptions{
		logger:               NoOpLogger{},
		initialCompletionCap: completionInitialCapacity,
		maxSpinLimit:         defaultMaxSpinLimit,
		taskDrainBudget:      remoteTaskDrainBudgetMicros * time.Microsecond,
		notifyQuantum:        remoteTaskNotifyQuantum,
		batchSize:            pollerBatchSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
