package csp

// ChannelOption configures a Channel at construction. See NewChannel.
type ChannelOption interface{ applyChannel(*channelOptions) }

type channelOptions struct {
	capacity    int
	readerLimit int
	writerLimit int
	overflow    OverflowPolicy
	executor    Executor
	timers      *TimerService
	logger      Logger
}

type channelOptionFunc func(*channelOptions)

func (f channelOptionFunc) applyChannel(o *channelOptions) { f(o) }

// WithCapacity sets the bounded buffer size. Zero (the default) is a pure
// rendezvous channel: a write only ever completes by pairing directly with
// a waiting read.
func WithCapacity(n int) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.capacity = n })
}

// WithReaderQueueLimit bounds how many reads may be waiting at once before
// the overflow policy applies. A negative limit (the default) is unbounded.
func WithReaderQueueLimit(n int) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.readerLimit = n })
}

// WithWriterQueueLimit bounds how many writes may be waiting at once before
// the overflow policy applies. A negative limit (the default) is unbounded.
func WithWriterQueueLimit(n int) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.writerLimit = n })
}

// WithOverflowPolicy sets the policy applied to both the reader and writer
// pending queues when a queue limit is exceeded. The default is
// OverflowReject.
func WithOverflowPolicy(p OverflowPolicy) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.overflow = p })
}

// WithChannelExecutor overrides the Executor used to dispatch this
// channel's future completions and callbacks.
func WithChannelExecutor(e Executor) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.executor = e })
}

// WithChannelTimers overrides the TimerService used to schedule this
// channel's deadlines.
func WithChannelTimers(t *TimerService) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.timers = t })
}

// WithChannelLogger overrides the Logger used for this channel's
// diagnostic events. The default is the process-wide logger (see
// SetLogger).
func WithChannelLogger(l Logger) ChannelOption {
	return channelOptionFunc(func(o *channelOptions) { o.logger = l })
}

func resolveChannelOptions(opts []ChannelOption) channelOptions {
	o := channelOptions{
		capacity:    0,
		readerLimit: -1,
		writerLimit: -1,
		overflow:    OverflowReject,
		executor:    DefaultExecutor(),
		timers:      DefaultTimerService(),
	}
	for _, opt := range opts {
		opt.applyChannel(&o)
	}
	return o
}

// SelectOption configures a Select call.
type SelectOption interface{ applySelect(*selectOptions) }

type selectOptions struct {
	priority Priority
}

type selectOptionFunc func(*selectOptions)

func (f selectOptionFunc) applySelect(o *selectOptions) { f(o) }

// WithPriority sets the candidate-resolution policy for a Select call. The
// default is PriorityFirst.
func WithPriority(p Priority) SelectOption {
	return selectOptionFunc(func(o *selectOptions) { o.priority = p })
}

func resolveSelectOptions(opts []SelectOption) selectOptions {
	o := selectOptions{priority: PriorityFirst}
	for _, opt := range opts {
		opt.applySelect(&o)
	}
	return o
}
